package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ugc-studio/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	delay   map[string]time.Duration
	aborted atomic.Int32
}

func (f *fakeUploader) Upload(ctx context.Context, file model.PendingFile) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, file.Name)
	f.mu.Unlock()

	if d := f.delay[file.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			f.aborted.Add(1)
			return "", ctx.Err()
		}
	}
	if err := f.fail[file.Name]; err != nil {
		return "", err
	}
	return "http://api.local/uploads/" + file.Name, nil
}

func files(names ...string) []model.PendingFile {
	out := make([]model.PendingFile, len(names))
	for i, n := range names {
		out[i] = model.PendingFile{Name: n, ContentType: "image/png", Data: []byte(n)}
	}
	return out
}

func TestUploadAllKeepsInputOrder(t *testing.T) {
	up := &fakeUploader{delay: map[string]time.Duration{
		"a.png": 30 * time.Millisecond,
		"b.png": 10 * time.Millisecond,
	}}
	c := NewCoordinator(up, 0)

	urls, err := c.UploadAll(context.Background(), files("a.png", "b.png", "c.png"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://api.local/uploads/a.png",
		"http://api.local/uploads/b.png",
		"http://api.local/uploads/c.png",
	}, urls)
	assert.Len(t, up.calls, 3)
}

func TestUploadAllIsAllOrNothing(t *testing.T) {
	boom := errors.New("File too large")
	up := &fakeUploader{
		fail:  map[string]error{"b.png": boom},
		delay: map[string]time.Duration{"a.png": time.Second, "c.png": time.Second},
	}
	c := NewCoordinator(up, 0)

	urls, err := c.UploadAll(context.Background(), files("a.png", "b.png", "c.png"))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, urls)
	assert.Equal(t, int32(2), up.aborted.Load())
}

func TestUploadAllBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	up := uploaderFunc(func(ctx context.Context, f model.PendingFile) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "u/" + f.Name, nil
	})
	c := NewCoordinator(up, 2)

	urls, err := c.UploadAll(context.Background(), files("1", "2", "3", "4", "5"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u/1", "u/2", "u/3", "u/4", "u/5"}, urls)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestUploadAllEmpty(t *testing.T) {
	c := NewCoordinator(&fakeUploader{}, 0)
	urls, err := c.UploadAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

type uploaderFunc func(ctx context.Context, f model.PendingFile) (string, error)

func (fn uploaderFunc) Upload(ctx context.Context, f model.PendingFile) (string, error) {
	return fn(ctx, f)
}
