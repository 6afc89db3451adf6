package model

// PayloadMessage is the wire form of a message sent to the stream endpoint.
type PayloadMessage struct {
	Role    Role   `json:"role" binding:"required"`
	Content string `json:"content"`
}

type StreamRequest struct {
	ChatID       string           `json:"chatId" binding:"required"`
	Provider     string           `json:"provider"`
	Messages     []PayloadMessage `json:"messages" binding:"required"`
	Images       []string         `json:"images,omitempty"`
	PromptImages []string         `json:"promptImages,omitempty"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

const (
	EventDelta = "delta"
	EventImage = "image"
	EventError = "error"
	// EventDefault is the name of a block that carries no event: line.
	EventDefault = "message"
)

type DeltaPayload struct {
	Delta string `json:"delta,omitempty"`
}

type ImagePayload struct {
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ErrorPayload carries the stream failure text. A nil Error means the field
// was absent; an empty string is kept as is.
type ErrorPayload struct {
	Error *string `json:"error,omitempty"`
}

// DefaultStreamError replaces the content when an error event has no message.
const DefaultStreamError = "Stream error."
