package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"ugc-studio/internal/config"
	"ugc-studio/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	UploadsRoute   = "/uploads"
	GeneratedRoute = "/gen_imgs"
)

var (
	ErrEmptyUpload       = errors.New("empty upload")
	ErrUnsupportedUpload = errors.New("only image uploads are supported")
	ErrUploadTooLarge    = errors.New("file too large")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStore writes uploads and generated images under their public routes.
type FileStore struct {
	uploadsDir   string
	generatedDir string
	maxBytes     int64
	now          func() time.Time
}

func NewFileStore(cfg config.UploadsConfig) (*FileStore, error) {
	for _, dir := range []string{cfg.Dir, cfg.GeneratedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &FileStore{
		uploadsDir:   cfg.Dir,
		generatedDir: cfg.GeneratedDir,
		maxBytes:     cfg.MaxBytes,
		now:          time.Now,
	}, nil
}

func (f *FileStore) UploadsDir() string   { return f.uploadsDir }
func (f *FileStore) GeneratedDir() string { return f.generatedDir }
func (f *FileStore) MaxBytes() int64      { return f.maxBytes }

// TooLargeMessage is the body returned when an upload exceeds the limit.
func (f *FileStore) TooLargeMessage() string {
	return fmt.Sprintf("File too large (max %s)", humanize.Bytes(uint64(f.maxBytes)))
}

// SaveUpload stores an image as "<unix ms>-<sanitized name>" and returns its
// server-relative URL.
func (f *FileStore) SaveUpload(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("%w: %s", ErrUploadTooLarge, humanize.Bytes(uint64(len(data))))
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: got %s", ErrUnsupportedUpload, mtype.String())
	}

	fileName := fmt.Sprintf("%d-%s", f.now().UnixMilli(), sanitizeName(name, mtype.Extension()))
	if err := os.WriteFile(filepath.Join(f.uploadsDir, fileName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	logger.Infof("Saved upload %s (%s, %s)", fileName, mtype.String(), humanize.Bytes(uint64(len(data))))
	return UploadsRoute + "/" + fileName, nil
}

// SaveGenerated stores a generated image under a random name.
func (f *FileStore) SaveGenerated(data []byte) (string, error) {
	ext := mimetype.Detect(data).Extension()
	if ext == "" {
		ext = ".png"
	}

	fileName := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(f.generatedDir, fileName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save generated image: %w", err)
	}
	return GeneratedRoute + "/" + fileName, nil
}

func sanitizeName(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" {
		name = "upload" + ext
	}
	return name
}
