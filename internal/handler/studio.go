package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ugc-studio/internal/client"
	"ugc-studio/internal/model"
	"ugc-studio/internal/sse"
	"ugc-studio/internal/studio"
	"ugc-studio/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	EventState = "state"

	sessionQueryParam = "session"
)

// ClientFactory returns a backend client scoped to one session id.
type ClientFactory func(sessionID string) *client.APIClient

// StudioHandler is the presentation gateway: it exposes one chat workspace
// per browser session and pushes its canonical state as SSE.
type StudioHandler struct {
	workspaces   *studio.Workspaces
	newClient    ClientFactory
	maxFileBytes int64
	heartbeat    time.Duration
}

func NewStudioHandler(newClient ClientFactory, opts studio.Options, workspaceTTL time.Duration, maxFileBytes int64) *StudioHandler {
	return &StudioHandler{
		workspaces: studio.NewWorkspaces(func(sessionID string) studio.API {
			return newClient(sessionID)
		}, opts, workspaceTTL),
		newClient:    newClient,
		maxFileBytes: maxFileBytes,
		heartbeat:    defaultHeartbeat,
	}
}

func (h *StudioHandler) Workspaces() *studio.Workspaces {
	return h.workspaces
}

func (h *StudioHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/studio")
	g.GET("/chats", h.ListChats)
	g.POST("/chats", h.NewChat)
	g.GET("/images", h.ProxyImage)

	ws := g.Group("/workspace", h.requireSession)
	{
		ws.GET("", h.GetWorkspace)
		ws.GET("/events", h.Events)
		ws.PUT("/chat/:chatId", h.OpenChat)
		ws.PUT("/provider", h.SetProvider)
		ws.POST("/attachments", h.AddAttachments)
		ws.DELETE("/attachments/:index", h.RemoveAttachment)
		ws.DELETE("/attachments", h.ClearAttachments)
		ws.POST("/send", h.Send)
	}
}

// workspaceView is what the browser renders. Uploads and Generated are
// derived from the messages, never stored separately.
type workspaceView struct {
	ChatID      string              `json:"chatId"`
	Version     uint64              `json:"version"`
	Messages    []model.ChatMessage `json:"messages"`
	Attachments []studio.Attachment `json:"attachments"`
	Sending     bool                `json:"sending"`
	Provider    string              `json:"provider"`
	Uploads     []string            `json:"uploads"`
	Generated   []string            `json:"generated"`
}

func newWorkspaceView(ws *studio.Workspace, state studio.ListState) workspaceView {
	view := workspaceView{
		ChatID:      state.ChatID,
		Version:     state.Version,
		Messages:    state.Messages,
		Attachments: ws.Composer().Attachments(),
		Sending:     ws.Sending(),
		Provider:    ws.Provider(),
		Uploads:     []string{},
		Generated:   []string{},
	}
	for _, m := range state.Messages {
		for _, u := range m.ImageURLs {
			switch {
			case m.Role == model.RoleAssistant:
				view.Generated = append(view.Generated, u)
			case !model.IsDataURI(u):
				view.Uploads = append(view.Uploads, u)
			}
		}
	}
	return view
}

func sessionID(c *gin.Context) string {
	if id := c.GetHeader(client.HeaderSessionID); id != "" {
		return id
	}
	// EventSource cannot set headers.
	return c.Query(sessionQueryParam)
}

func (h *StudioHandler) requireSession(c *gin.Context) {
	id := sessionID(c)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing session id"})
		return
	}
	c.Set("workspace", h.workspaces.Get(id))
	c.Next()
}

func workspaceFrom(c *gin.Context) *studio.Workspace {
	return c.MustGet("workspace").(*studio.Workspace)
}

func (h *StudioHandler) respondView(c *gin.Context, status int, ws *studio.Workspace) {
	c.JSON(status, newWorkspaceView(ws, ws.List().Snapshot()))
}

func (h *StudioHandler) ListChats(c *gin.Context) {
	items, err := h.newClient(sessionID(c)).ListChats(c.Request.Context())
	if err != nil {
		logger.Warnf("Failed to list chats: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.HistoryList{Items: items})
}

func (h *StudioHandler) NewChat(c *gin.Context) {
	id := sessionID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session id"})
		return
	}
	ws := h.workspaces.Get(id)
	ws.NewChat()
	h.respondView(c, http.StatusCreated, ws)
}

func (h *StudioHandler) GetWorkspace(c *gin.Context) {
	h.respondView(c, http.StatusOK, workspaceFrom(c))
}

func (h *StudioHandler) OpenChat(c *gin.Context) {
	ws := workspaceFrom(c)
	ws.Open(c.Request.Context(), c.Param("chatId"))
	h.respondView(c, http.StatusOK, ws)
}

func (h *StudioHandler) SetProvider(c *gin.Context) {
	var req struct {
		Provider string `json:"provider" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspaceFrom(c)
	ws.SetProvider(req.Provider)
	h.respondView(c, http.StatusOK, ws)
}

// AddAttachments takes one or more multipart "file" parts. Only images are
// accepted; the type is sniffed from the content.
func (h *StudioHandler) AddAttachments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file parts"})
		return
	}

	files := make([]model.PendingFile, 0, len(headers))
	for _, fh := range headers {
		if h.maxFileBytes > 0 && fh.Size > h.maxFileBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fh.Filename + " is larger than " + humanize.Bytes(uint64(h.maxFileBytes)),
			})
			return
		}

		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		mtype := mimetype.Detect(data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fh.Filename + " is not an image"})
			return
		}
		files = append(files, model.PendingFile{Name: fh.Filename, ContentType: mtype.String(), Data: data})
	}

	ws := workspaceFrom(c)
	if err := ws.Composer().Add(files...); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondView(c, http.StatusOK, ws)
}

func (h *StudioHandler) RemoveAttachment(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	ws := workspaceFrom(c)
	if err := ws.Composer().Remove(index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.respondView(c, http.StatusOK, ws)
}

func (h *StudioHandler) ClearAttachments(c *gin.Context) {
	ws := workspaceFrom(c)
	ws.Composer().Clear()
	h.respondView(c, http.StatusOK, ws)
}

// Send starts a send in the background; progress arrives on the events stream.
func (h *StudioHandler) Send(c *gin.Context) {
	var req struct {
		Text     string `json:"text"`
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws := workspaceFrom(c)
	assistantID, err := ws.SendAsync(context.WithoutCancel(c.Request.Context()), studio.SendInput{
		Text:     req.Text,
		Provider: req.Provider,
	})
	switch {
	case errors.Is(err, studio.ErrNothingToSend):
		c.Status(http.StatusNoContent)
	case errors.Is(err, studio.ErrSendInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"assistantId": assistantID})
	}
}

// Events streams a state event for every list version, latest wins, plus
// heartbeat comments.
func (h *StudioHandler) Events(c *gin.Context) {
	ws := workspaceFrom(c)
	states, cancel := ws.List().Subscribe()
	defer cancel()

	w := sse.NewWriter(c.Writer)
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := w.WriteJSON(EventState, newWorkspaceView(ws, state)); err != nil {
				logger.Debugf("state stream closed: %v", err)
				return
			}
		case <-ticker.C:
			if err := w.Comment("heartbeat"); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ProxyImage fetches a backend image with the tunnel skip header. When the
// fetch fails the browser is redirected to the original url. Only urls on the
// API origin are served.
func (h *StudioHandler) ProxyImage(c *gin.Context) {
	src := c.Query("src")
	if src == "" || model.IsDataURI(src) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "src must be an image url"})
		return
	}

	api := h.newClient(sessionID(c))
	target := api.ResolveURL(src)
	if !sameOrigin(api.BaseURL(), target) {
		logger.Warnf("image proxy rejected off-origin src: %s", src)
		c.JSON(http.StatusBadRequest, gin.H{"error": "src must point at the backend"})
		return
	}

	resp, err := api.FetchImage(c.Request.Context(), target)
	if err != nil {
		logger.Debugf("image proxy falling back to redirect: %v", err)
		c.Redirect(http.StatusFound, target)
		return
	}
	defer resp.Body.Close()

	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, nil)
}

func sameOrigin(base, target string) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(b.Scheme, u.Scheme) && strings.EqualFold(b.Host, u.Host)
}
