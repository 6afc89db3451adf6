package studio

import (
	"errors"
	"fmt"
	"sync"

	"ugc-studio/internal/model"
)

var (
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrAttachmentIndex    = errors.New("attachment index out of range")
)

// Attachment is the read-only view of one pending file.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Preview     string `json:"preview"`
}

// Composer holds the files picked for the next send, each paired with its
// preview at the same index.
type Composer struct {
	mu       sync.Mutex
	files    []model.PendingFile
	previews []string
	max      int
}

// NewComposer caps the pending set at max files; zero means no cap.
func NewComposer(max int) *Composer {
	return &Composer{max: max}
}

func (c *Composer) Add(files ...model.PendingFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.max > 0 && len(c.files)+len(files) > c.max {
		return fmt.Errorf("%w: at most %d", ErrTooManyAttachments, c.max)
	}
	for _, f := range files {
		c.files = append(c.files, f)
		c.previews = append(c.previews, f.Preview())
	}
	return nil
}

func (c *Composer) Remove(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.files) {
		return ErrAttachmentIndex
	}
	c.files = append(c.files[:index:index], c.files[index+1:]...)
	c.previews = append(c.previews[:index:index], c.previews[index+1:]...)
	return nil
}

func (c *Composer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = nil
	c.previews = nil
}

// Take returns the pending files with their previews and empties the
// composer.
func (c *Composer) Take() ([]model.PendingFile, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, previews := c.files, c.previews
	c.files = nil
	c.previews = nil
	return files, previews
}

func (c *Composer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

func (c *Composer) Attachments() []Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Attachment, len(c.files))
	for i, f := range c.files {
		out[i] = Attachment{
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        len(f.Data),
			Preview:     c.previews[i],
		}
	}
	return out
}
