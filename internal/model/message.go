package model

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only ever persisted; it never reaches the message list.
	RoleSystem Role = "system"
)

// ImageOnlyContent is the user message text when a send carries images but no text.
const ImageOnlyContent = "Shared an image."

// ChatMessage is one entry of the canonical message list.
type ChatMessage struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	if m.ImageURLs != nil {
		m.ImageURLs = append([]string(nil), m.ImageURLs...)
	}
	return m
}

func NewUserMessageID() string {
	return "user-" + uuid.NewString()
}

func NewAssistantMessageID() string {
	return "assistant-" + uuid.NewString()
}

// PendingFile is a locally selected file waiting to be uploaded.
type PendingFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Preview renders the file as a data: URI for local display.
func (f PendingFile) Preview() string {
	return DataURI(f.ContentType, base64.StdEncoding.EncodeToString(f.Data))
}

// DataURI builds a base64 data: URI, defaulting the MIME type to image/png.
func DataURI(mimeType, b64 string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + b64
}

func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}
