package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ChatSnapshot is the backend's persisted representation of a conversation.
type ChatSnapshot struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Messages  []SnapshotMessage `json:"messages"`
}

type SnapshotMessage struct {
	Role    Role            `json:"role"`
	Content SnapshotContent `json:"content"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// SnapshotContent is the `string | ContentPart[]` union. Exactly one of Text
// and Parts is meaningful, selected by Structured.
type SnapshotContent struct {
	Structured bool
	Text       string
	Parts      []ContentPart
}

var ErrInvalidContent = errors.New("content is neither a string nor a part list")

func PlainContent(text string) SnapshotContent {
	return SnapshotContent{Text: text}
}

func StructuredContent(parts ...ContentPart) SnapshotContent {
	return SnapshotContent{Structured: true, Parts: parts}
}

func (c SnapshotContent) MarshalJSON() ([]byte, error) {
	if c.Structured {
		parts := c.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		return json.Marshal(parts)
	}
	return json.Marshal(c.Text)
}

func (c *SnapshotContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = SnapshotContent{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*c = SnapshotContent{Text: text}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		*c = SnapshotContent{Structured: true, Parts: parts}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidContent, trimmed)
	}
}

// Flatten joins text parts with newlines and collects image URLs in order.
// Plain content yields its text and no images.
func (c SnapshotContent) Flatten() (string, []string) {
	if !c.Structured {
		return c.Text, nil
	}

	var texts []string
	var images []string
	for _, part := range c.Parts {
		switch part.Type {
		case PartTypeText:
			texts = append(texts, part.Text)
		case PartTypeImageURL:
			if part.ImageURL != nil {
				images = append(images, part.ImageURL.URL)
			}
		}
	}

	return strings.Join(texts, "\n"), images
}

// ChatSummary is one row of the chat history listing.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type HistoryList struct {
	Items []ChatSummary `json:"items,omitempty"`
}
