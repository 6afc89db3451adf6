package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"ugc-studio/internal/client"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
	"ugc-studio/internal/service"
	"ugc-studio/internal/sse"
	"ugc-studio/internal/storage"
	"ugc-studio/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultHeartbeat   = 30 * time.Second
	multipartOverhead  = 1 << 20
	streamTimeoutError = "Stream timed out."
)

// ChatHandler serves the /api endpoints the studio talks to.
type ChatHandler struct {
	chatService   *service.ChatService
	files         *service.FileStore
	streamTimeout time.Duration
	heartbeat     time.Duration
}

func NewChatHandler(chatService *service.ChatService, files *service.FileStore, streamTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		files:         files,
		streamTimeout: streamTimeout,
		heartbeat:     defaultHeartbeat,
	}
}

func (h *ChatHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/upload", h.Upload)

	chat := api.Group("/chat")
	{
		chat.POST("/stream", h.StreamChat)
		chat.GET("/history", h.ListChats)
		chat.GET("/history/:chatId", h.GetChat)
		chat.DELETE("/history/:chatId", h.DeleteChat)
	}
}

func sessionOwner(c *gin.Context) string {
	return c.GetHeader(client.HeaderSessionID)
}

// Upload accepts one multipart "file" image. Failures answer with plain text
// because the client shows the body verbatim.
func (h *ChatHandler) Upload(c *gin.Context) {
	maxBytes := h.files.MaxBytes()
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.uploadFailed(c, http.StatusRequestEntityTooLarge, h.files.TooLargeMessage())
			return
		}
		h.uploadFailed(c, http.StatusBadRequest, "Missing file field.")
		return
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		h.uploadFailed(c, http.StatusRequestEntityTooLarge, h.files.TooLargeMessage())
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.uploadFailed(c, http.StatusBadRequest, "Unreadable file.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.uploadFailed(c, http.StatusBadRequest, "Unreadable file.")
		return
	}

	url, err := h.files.SaveUpload(fh.Filename, data)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUploadTooLarge):
		h.uploadFailed(c, http.StatusRequestEntityTooLarge, h.files.TooLargeMessage())
		return
	case errors.Is(err, service.ErrUnsupportedUpload):
		h.uploadFailed(c, http.StatusUnsupportedMediaType, "Only image uploads are supported.")
		return
	case errors.Is(err, service.ErrEmptyUpload):
		h.uploadFailed(c, http.StatusBadRequest, "Empty file.")
		return
	default:
		logger.Errorf("Failed to save upload %q: %v", fh.Filename, err)
		h.uploadFailed(c, http.StatusInternalServerError, "Failed to save upload.")
		return
	}

	metrics.BackendUploads.WithLabelValues(metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, model.UploadResponse{URL: url})
}

func (h *ChatHandler) uploadFailed(c *gin.Context, status int, msg string) {
	metrics.BackendUploads.WithLabelValues(metrics.OutcomeRejected).Inc()
	c.String(status, "%s", msg)
}

// StreamChat answers with an SSE stream of delta, image and error events.
// Request problems are reported before the stream starts, as plain text.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	if len(req.Messages) == 0 {
		c.String(http.StatusBadRequest, "No messages to answer.")
		return
	}
	if _, err := h.chatService.ResolveProvider(req.Provider); err != nil {
		c.String(http.StatusBadRequest, "%s", err.Error())
		return
	}

	log := logger.WithFields(logrus.Fields{"chat_id": req.ChatID, "provider": req.Provider})

	ctx := c.Request.Context()
	if h.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.streamTimeout)
		defer cancel()
	}

	w := sse.NewWriter(c.Writer)
	c.Status(http.StatusOK)

	heartbeatTicker := time.NewTicker(h.heartbeat)
	defer heartbeatTicker.Stop()
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	defer wg.Wait()
	defer close(done)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-heartbeatTicker.C:
				if err := w.Comment("heartbeat"); err != nil {
					log.Warnf("Heartbeat failed: %v", err)
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	respChan, errChan := h.chatService.StreamChat(ctx, sessionOwner(c), req)

	for ev := range respChan {
		if err := w.WriteJSON(ev.Name, ev.Payload); err != nil {
			log.Errorf("Failed to write SSE: %v", err)
			return
		}
	}

	err := <-errChan
	if err == nil {
		return
	}
	msg := err.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = streamTimeoutError
	}
	log.Errorf("Stream failed: %v", err)
	if werr := w.WriteJSON(model.EventError, model.ErrorPayload{Error: &msg}); werr != nil {
		log.Errorf("Failed to write SSE error: %v", werr)
	}
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	items, err := h.chatService.ListChats(sessionOwner(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.HistoryList{Items: items})
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, err := h.chatService.GetChat(sessionOwner(c), c.Param("chatId"))
	if err != nil {
		c.JSON(chatErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	if err := h.chatService.DeleteChat(sessionOwner(c), c.Param("chatId")); err != nil {
		c.JSON(chatErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

func chatErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrChatNotFound), errors.Is(err, service.ErrChatNotOwned):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
