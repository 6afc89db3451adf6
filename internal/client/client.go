// Package client talks to the generation backend: uploads, chat history and
// the chat stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"ugc-studio/internal/model"
	"ugc-studio/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	HeaderSessionID = "X-Session-Id"
	// ngrok serves an interstitial page to browsers unless this is present.
	HeaderSkipBrowserWarning = "ngrok-skip-browser-warning"

	maxErrorBody = 64 << 10
)

type APIClient struct {
	baseURL   string
	sessionID string
	http      *http.Client
}

func NewAPIClient(baseURL, sessionID string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		http:      httpClient,
	}
}

func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// WithSessionID returns a client sharing the transport but sending a
// different X-Session-Id.
func (c *APIClient) WithSessionID(sessionID string) *APIClient {
	cp := *c
	cp.sessionID = sessionID
	return &cp
}

// ResolveURL makes a server-relative URL absolute against the API base.
// Absolute http(s) URLs and data: URIs are returned unchanged.
func (c *APIClient) ResolveURL(ref string) string {
	return ResolveURL(c.baseURL, ref)
}

func ResolveURL(base, ref string) string {
	if ref == "" || model.IsDataURI(ref) {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return base + ref
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(HeaderSkipBrowserWarning, "1")
	if c.sessionID != "" {
		req.Header.Set(HeaderSessionID, c.sessionID)
	}
	return req, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one file as the multipart field "file" and returns the
// absolute URL the backend stored it under.
func (c *APIClient) Upload(ctx context.Context, file model.PendingFile) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logger.WithFields(logrus.Fields{
		"file": file.Name,
		"size": humanize.Bytes(uint64(len(file.Data))),
	}).Debug("uploading attachment")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorBody(resp.Body)
		if msg == "" {
			msg = defaultUploadError
		}
		return "", &UploadError{File: file.Name, Status: resp.StatusCode, Message: msg}
	}

	var payload model.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Warnf("Undecodable upload response for %s: %v", file.Name, err)
		return "", &UploadError{File: file.Name, Status: resp.StatusCode, Message: missingURLError}
	}
	if payload.URL == "" {
		return "", &UploadError{File: file.Name, Status: resp.StatusCode, Message: missingURLError}
	}

	return c.ResolveURL(payload.URL), nil
}

// FetchSnapshot loads the persisted conversation for chatID.
func (c *APIClient) FetchSnapshot(ctx context.Context, chatID string) (*model.ChatSnapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: "fetch history", Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var snapshot model.ChatSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return &snapshot, nil
}

// ListChats returns the chat summaries owned by this client's session id.
func (c *APIClient) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/history", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: "list chats", Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var list model.HistoryList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode chat list: %w", err)
	}
	if list.Items == nil {
		return []model.ChatSummary{}, nil
	}
	return list.Items, nil
}

// OpenStream posts the chat request and hands back the raw event stream. The
// caller owns the returned body.
func (c *APIClient) OpenStream(ctx context.Context, streamReq model.StreamRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(streamReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/stream", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg := readErrorBody(resp.Body)
		if msg == "" {
			msg = defaultStreamError
		}
		return nil, &StreamStartError{Status: resp.StatusCode, Message: msg}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &StreamStartError{Status: resp.StatusCode, Message: defaultStreamError}
	}

	return resp.Body, nil
}

// FetchImage downloads src with the ngrok skip header. The caller closes the
// returned response body.
func (c *APIClient) FetchImage(ctx context.Context, src string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(src), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(HeaderSkipBrowserWarning, "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Op: "fetch image", Status: resp.StatusCode}
	}
	return resp, nil
}
