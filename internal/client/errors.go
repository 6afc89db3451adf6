package client

import "fmt"

const (
	defaultUploadError = "Failed to upload image."
	missingURLError    = "Upload response missing url."
	defaultStreamError = "Failed to start stream."
)

// UploadError is returned when the upload endpoint rejects a file or answers
// without a url. Message is the server's body text when it sent one.
type UploadError struct {
	File    string
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// StreamStartError is returned when the stream request is not accepted.
type StreamStartError struct {
	Status  int
	Message string
}

func (e *StreamStartError) Error() string {
	return e.Message
}

// StatusError covers the remaining endpoints, whose failures callers treat
// as soft.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}
