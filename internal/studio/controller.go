package studio

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"ugc-studio/internal/client"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
	"ugc-studio/internal/sse"
	"ugc-studio/internal/upload"
	"ugc-studio/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNothingToSend = errors.New("nothing to send")
	ErrSendInFlight  = errors.New("a message is already being sent")
)

const (
	WelcomeMessageID   = "welcome"
	unableToSend       = "Unable to send message."
	defaultWelcomeText = "Hi! Ask a question or upload an image to start chatting."
)

// API is the part of the backend the controller talks to.
type API interface {
	upload.Uploader
	SnapshotFetcher
	OpenStream(ctx context.Context, req model.StreamRequest) (io.ReadCloser, error)
}

type Options struct {
	BaseURL              string
	Provider             string
	WelcomeMessage       string
	MaxAttachments       int
	MaxConcurrentUploads int
}

type SendInput struct {
	Text string
	// Provider overrides the controller's selected provider for this send.
	Provider string
}

// Controller drives one chat workspace: opening chats and sending messages.
type Controller struct {
	api      API
	uploads  *upload.Coordinator
	history  *HistoryLoader
	list     *MessageList
	composer *Composer
	baseURL  string
	welcome  string

	mu       sync.Mutex
	provider string
	sending  bool
	loadGen  uint64
	wg       sync.WaitGroup
}

func NewController(api API, opts Options) *Controller {
	welcome := opts.WelcomeMessage
	if welcome == "" {
		welcome = defaultWelcomeText
	}
	c := &Controller{
		api:      api,
		uploads:  upload.NewCoordinator(api, opts.MaxConcurrentUploads),
		history:  NewHistoryLoader(api, opts.BaseURL),
		list:     NewMessageList(),
		composer: NewComposer(opts.MaxAttachments),
		baseURL:  opts.BaseURL,
		welcome:  welcome,
		provider: opts.Provider,
	}
	c.list.Replace(uuid.NewString(), c.welcomeMessages())
	return c
}

func (c *Controller) List() *MessageList {
	return c.list
}

func (c *Controller) Composer() *Composer {
	return c.composer
}

func (c *Controller) Provider() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

func (c *Controller) SetProvider(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = provider
}

func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Controller) welcomeMessages() []model.ChatMessage {
	return []model.ChatMessage{{
		ID:      WelcomeMessageID,
		Role:    model.RoleAssistant,
		Content: c.welcome,
	}}
}

// NewChat activates a fresh chat id showing only the welcome message.
func (c *Controller) NewChat() string {
	chatID := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadGen++
	c.list.Replace(chatID, c.welcomeMessages())
	return chatID
}

// Open switches to chatID. The welcome state is applied at once and the
// persisted history replaces it when it arrives, unless another Open, NewChat
// or Send has happened in the meantime. Load failures keep the welcome state.
func (c *Controller) Open(ctx context.Context, chatID string) bool {
	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	c.list.Replace(chatID, c.welcomeMessages())
	c.mu.Unlock()

	log := logger.WithFields(logrus.Fields{"chat_id": chatID})

	msgs, err := c.history.Load(ctx, chatID)
	if err != nil {
		log.Warnf("keeping welcome state: %v", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.loadGen || c.list.ChatID() != chatID {
		log.Debug("discarding stale history load")
		return false
	}
	if len(msgs) == 0 {
		return false
	}
	c.list.Replace(chatID, msgs)
	return true
}

type sendJob struct {
	chatID      string
	provider    string
	userID      string
	assistantID string
	files       []model.PendingFile
	// prior is the conversation as it stood before this send, user message
	// included.
	prior []model.ChatMessage
}

func (c *Controller) begin(in SendInput) (*sendJob, error) {
	text := strings.TrimSpace(in.Text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if text == "" && c.composer.Len() == 0 {
		return nil, ErrNothingToSend
	}
	if c.sending {
		metrics.StudioSends.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, ErrSendInFlight
	}
	c.sending = true
	// Paired with wg.Done in run.
	c.wg.Add(1)
	// A send supersedes any history load still in flight.
	c.loadGen++

	files, previews := c.composer.Take()

	content := text
	if content == "" {
		content = model.ImageOnlyContent
	}
	user := model.ChatMessage{
		ID:      model.NewUserMessageID(),
		Role:    model.RoleUser,
		Content: content,
	}
	if len(previews) > 0 {
		user.ImageURLs = previews
	}
	placeholder := model.ChatMessage{
		ID:   model.NewAssistantMessageID(),
		Role: model.RoleAssistant,
	}

	state := c.list.Snapshot()
	c.list.Append(user, placeholder)

	provider := in.Provider
	if provider == "" {
		provider = c.provider
	}

	return &sendJob{
		chatID:      state.ChatID,
		provider:    provider,
		userID:      user.ID,
		assistantID: placeholder.ID,
		files:       files,
		prior:       append(state.Messages, user),
	}, nil
}

// Send runs one message through upload, stream and reconciliation and
// returns the assistant placeholder id. Failures after the placeholder has
// been created are written into it and also returned.
func (c *Controller) Send(ctx context.Context, in SendInput) (string, error) {
	job, err := c.begin(in)
	if err != nil {
		return "", err
	}
	return job.assistantID, c.run(ctx, job)
}

// SendAsync validates and stages the send synchronously, then streams in the
// background. Use Wait to join.
func (c *Controller) SendAsync(ctx context.Context, in SendInput) (string, error) {
	job, err := c.begin(in)
	if err != nil {
		return "", err
	}
	go func() {
		_ = c.run(ctx, job)
	}()
	return job.assistantID, nil
}

// Wait blocks until every started send has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close drops pending attachments and waits for in-flight sends.
func (c *Controller) Close() {
	c.composer.Clear()
	c.Wait()
}

func (c *Controller) run(ctx context.Context, job *sendJob) (err error) {
	log := logger.WithFields(logrus.Fields{
		"chat_id":    job.chatID,
		"message_id": job.assistantID,
		"provider":   job.provider,
	})
	rec := NewReconciler(c.list, job.assistantID, c.baseURL)

	defer func() {
		if err != nil {
			rec.Fail(failureMessage(err))
			metrics.StudioSends.WithLabelValues(metrics.OutcomeError).Inc()
			log.Warnf("send failed: %v", err)
		} else {
			metrics.StudioSends.WithLabelValues(metrics.OutcomeOK).Inc()
		}
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.wg.Done()
	}()

	var urls []string
	if len(job.files) > 0 {
		urls, err = c.uploads.UploadAll(ctx, job.files)
		if err != nil {
			return err
		}
		c.list.Update(job.userID, func(m *model.ChatMessage) {
			m.ImageURLs = append([]string(nil), urls...)
		})
	}

	body, err := c.api.OpenStream(ctx, buildRequest(job, urls))
	if err != nil {
		return err
	}
	defer body.Close()

	log.Debug("stream opened")

	dec := sse.NewDecoder(body)
	for !rec.Done() {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := rec.Apply(ev); err != nil {
			return err
		}
	}

	if n := dec.Dropped(); n > 0 {
		log.Debugf("discarded %d trailing bytes", n)
	}
	return nil
}

// buildRequest turns the conversation captured at send time into the stream
// payload. urls are this send's uploads; earlier remote user images become
// prompt images.
func buildRequest(job *sendJob, urls []string) model.StreamRequest {
	req := model.StreamRequest{
		ChatID:   job.chatID,
		Provider: job.provider,
		Messages: make([]model.PayloadMessage, 0, len(job.prior)),
		Images:   urls,
	}

	for _, m := range job.prior {
		req.Messages = append(req.Messages, model.PayloadMessage{Role: m.Role, Content: m.Content})
		if m.ID == job.userID || m.Role != model.RoleUser {
			continue
		}
		for _, u := range m.ImageURLs {
			if !model.IsDataURI(u) {
				req.PromptImages = append(req.PromptImages, u)
			}
		}
	}
	return req
}

// failureMessage picks the text shown in the placeholder for a failed send.
func failureMessage(err error) string {
	var uploadErr *client.UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.Message
	}
	var startErr *client.StreamStartError
	if errors.As(err, &startErr) {
		return startErr.Message
	}
	return unableToSend
}
