// Package upload resolves a batch of pending attachments into remote URLs.
package upload

import (
	"context"
	"fmt"

	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
	"ugc-studio/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Uploader stores a single file and returns the absolute URL it is served at.
type Uploader interface {
	Upload(ctx context.Context, file model.PendingFile) (string, error)
}

type Coordinator struct {
	uploader Uploader
	// maxConcurrent bounds the fan-out; zero means one goroutine per file.
	maxConcurrent int
}

func NewCoordinator(uploader Uploader, maxConcurrent int) *Coordinator {
	return &Coordinator{uploader: uploader, maxConcurrent: maxConcurrent}
}

// UploadAll uploads every file concurrently and returns the URLs in input
// order. The first failure cancels the remaining uploads and no URLs are
// returned.
func (c *Coordinator) UploadAll(ctx context.Context, files []model.PendingFile) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	urls := make([]string, len(files))
	p := pool.New().
		WithErrors().
		WithContext(ctx).
		WithFirstError().
		WithCancelOnError()
	if c.maxConcurrent > 0 {
		p = p.WithMaxGoroutines(c.maxConcurrent)
	}

	for i, file := range files {
		i, file := i, file
		p.Go(func(ctx context.Context) error {
			url, err := c.uploader.Upload(ctx, file)
			if err != nil {
				metrics.StudioUploads.WithLabelValues(metrics.OutcomeError).Inc()
				return err
			}
			metrics.StudioUploads.WithLabelValues(metrics.OutcomeOK).Inc()
			urls[i] = url
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		logger.WithFields(logrus.Fields{"files": len(files)}).Warnf("upload batch failed: %v", err)
		return nil, err
	}

	for i, url := range urls {
		if url == "" {
			return nil, fmt.Errorf("upload %s: empty url", files[i].Name)
		}
	}
	return urls, nil
}
