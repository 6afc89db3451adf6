package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ugc-studio/internal/config"
	"ugc-studio/internal/llm"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
	"ugc-studio/internal/storage"
	"ugc-studio/pkg/logger"

	"github.com/sirupsen/logrus"
)

const (
	titleMaxRunes      = 30
	defaultTitle       = "New chat"
	storyboardMaxInput = 2000
)

var ErrChatNotOwned = errors.New("chat belongs to another session")

// StreamEvent is one frame for the response stream.
type StreamEvent struct {
	Name    string
	Payload any
}

type ChatService struct {
	storage    storage.Storage
	generator  *Generator
	images     llm.ImageGenerator
	files      *FileStore
	generation config.GenerationConfig
	config     *config.SessionConfig
	now        func() time.Time
}

// NewStorage builds the configured store, falling back to memory when the
// disk store cannot be initialized.
func NewStorage(cfg config.StorageConfig) storage.Storage {
	var store storage.Storage
	if cfg.Type == "disk" {
		store = storage.NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	} else {
		store = storage.NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		store = storage.NewMemoryStorage()
		_ = store.Init()
	}
	return store
}

func NewChatService(cfg *config.Config, store storage.Storage, generator *Generator, images llm.ImageGenerator, files *FileStore) *ChatService {
	return &ChatService{
		storage:    store,
		generator:  generator,
		images:     images,
		files:      files,
		generation: cfg.Generation,
		config:     &cfg.Session,
		now:        time.Now,
	}
}

func (s *ChatService) Storage() storage.Storage {
	return s.storage
}

// ResolveProvider checks the provider before any response is written.
func (s *ChatService) ResolveProvider(provider string) (string, error) {
	return s.generator.Resolve(provider)
}

// StreamChat generates the reply for req. Events arrive on the first channel
// until it closes; a failure is delivered once on the second channel.
func (s *ChatService) StreamChat(ctx context.Context, owner string, req model.StreamRequest) (<-chan StreamEvent, <-chan error) {
	respChan := make(chan StreamEvent, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		log := logger.WithFields(logrus.Fields{"chat_id": req.ChatID, "provider": req.Provider})

		send := func(ev StreamEvent) bool {
			select {
			case respChan <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		stream, provider, err := s.generator.Stream(ctx, &req)
		if err != nil {
			metrics.BackendStreams.WithLabelValues(provider, metrics.OutcomeError).Inc()
			errChan <- err
			return
		}
		defer stream.Close()

		var reply strings.Builder
		var streamErr error
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				streamErr = err
				break
			}
			if chunk.Content == "" {
				continue
			}
			reply.WriteString(chunk.Content)
			if !send(StreamEvent{Name: model.EventDelta, Payload: model.DeltaPayload{Delta: chunk.Content}}) {
				streamErr = ctx.Err()
				break
			}
		}

		var generated []string
		if streamErr == nil && reply.Len() > 0 {
			if ev, ok := s.storyboard(ctx, reply.String()); ok {
				if p, isURL := ev.Payload.(model.ImagePayload); isURL && p.URL != "" {
					generated = append(generated, p.URL)
				}
				send(ev)
			}
		}

		if err := s.saveExchange(owner, &req, reply.String(), generated); err != nil {
			log.Errorf("Failed to persist chat: %v", err)
		}

		if streamErr != nil {
			metrics.BackendStreams.WithLabelValues(provider, metrics.OutcomeError).Inc()
			errChan <- streamErr
			return
		}
		metrics.BackendStreams.WithLabelValues(provider, metrics.OutcomeOK).Inc()
		log.Infof("Reply complete (%d chars, %d images)", reply.Len(), len(generated))
	}()

	return respChan, errChan
}

// storyboard renders one image for the reply. Failures are logged and
// skipped; the reply itself already succeeded.
func (s *ChatService) storyboard(ctx context.Context, reply string) (StreamEvent, bool) {
	if s.images == nil {
		return StreamEvent{}, false
	}

	input := truncateString(reply, storyboardMaxInput)
	if p := s.generation.Storyboard.Prompt; p != "" {
		input = p + "\n\n" + input
	}

	img, err := s.images.GenerateImage(ctx, input)
	if err != nil {
		logger.Warnf("Storyboard generation failed: %v", err)
		return StreamEvent{}, false
	}

	if s.files != nil {
		url, err := s.files.SaveGenerated(img.Data)
		if err == nil {
			return StreamEvent{Name: model.EventImage, Payload: model.ImagePayload{URL: url}}, true
		}
		logger.Warnf("Sending storyboard inline: %v", err)
	}

	return StreamEvent{Name: model.EventImage, Payload: model.ImagePayload{
		Data:     base64.StdEncoding.EncodeToString(img.Data),
		MimeType: img.MimeType,
	}}, true
}

// saveExchange persists system prompt, request messages and reply. Stored
// turns that match the request keep their structured content, so earlier
// images survive later sends.
func (s *ChatService) saveExchange(owner string, req *model.StreamRequest, reply string, generated []string) error {
	now := s.now().UTC()

	existing, err := s.storage.GetChat(req.ChatID)
	if err != nil && !errors.Is(err, storage.ErrChatNotFound) {
		return fmt.Errorf("failed to load chat: %w", err)
	}

	chat := &storage.Chat{Owner: owner}
	chat.ID = req.ChatID
	chat.CreatedAt = now
	var stored []model.SnapshotMessage
	if existing != nil {
		chat.Owner = existing.Owner
		chat.Title = existing.Title
		chat.CreatedAt = existing.CreatedAt
		for _, m := range existing.Messages {
			if m.Role != model.RoleSystem {
				stored = append(stored, m)
			}
		}
	}
	chat.UpdatedAt = now

	if p := s.generation.SystemPrompt; p != "" {
		chat.Messages = append(chat.Messages, model.SnapshotMessage{Role: model.RoleSystem, Content: model.PlainContent(p)})
	}

	last := len(req.Messages) - 1
	for i, m := range req.Messages {
		if i < len(stored) && i != last && stored[i].Role == m.Role {
			if text, _ := stored[i].Content.Flatten(); text == m.Content {
				chat.Messages = append(chat.Messages, stored[i])
				continue
			}
		}

		content := model.PlainContent(m.Content)
		if i == last && m.Role == model.RoleUser && len(req.Images) > 0 {
			content = structured(m.Content, req.Images)
		}
		chat.Messages = append(chat.Messages, model.SnapshotMessage{Role: m.Role, Content: content})

		if chat.Title == "" && m.Role == model.RoleUser && strings.TrimSpace(m.Content) != "" && m.Content != model.ImageOnlyContent {
			chat.Title = truncateString(strings.TrimSpace(m.Content), titleMaxRunes)
		}
	}

	replyContent := model.PlainContent(reply)
	if len(generated) > 0 {
		replyContent = structured(reply, generated)
	}
	chat.Messages = append(chat.Messages, model.SnapshotMessage{Role: model.RoleAssistant, Content: replyContent})

	if chat.Title == "" {
		chat.Title = defaultTitle
	}

	if err := s.storage.SaveChat(chat); err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func structured(text string, images []string) model.SnapshotContent {
	parts := make([]model.ContentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, model.TextPart(text))
	}
	for _, u := range images {
		parts = append(parts, model.ImagePart(u))
	}
	return model.StructuredContent(parts...)
}

func (s *ChatService) GetChat(owner, chatID string) (*model.ChatSnapshot, error) {
	chat, err := s.storage.GetChat(chatID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat.Owner != "" && owner != "" && chat.Owner != owner {
		return nil, ErrChatNotOwned
	}
	return &chat.ChatSnapshot, nil
}

func (s *ChatService) ListChats(owner string) ([]model.ChatSummary, error) {
	rows, err := s.storage.ListChats(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	items := make([]model.ChatSummary, len(rows))
	for i, row := range rows {
		items[i] = row.Summary()
	}
	return items, nil
}

func (s *ChatService) DeleteChat(owner, chatID string) error {
	if _, err := s.GetChat(owner, chatID); err != nil {
		return err
	}
	if err := s.storage.DeleteChat(chatID); err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// CleanupOldChats deletes chats not updated within the session TTL.
func (s *ChatService) CleanupOldChats() int {
	if s.config.TTL <= 0 {
		return 0
	}

	rows, err := s.storage.ListChats("")
	if err != nil {
		logger.Errorf("Failed to list chats for cleanup: %v", err)
		return 0
	}

	cutoff := s.now().Add(-s.config.TTL)
	removed := 0
	for _, row := range rows {
		if !row.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.storage.DeleteChat(row.ID); err != nil {
			logger.Errorf("Failed to delete expired chat %s: %v", row.ID, err)
			continue
		}
		logger.Infof("Cleaned up expired chat: %s", row.ID)
		removed++
	}
	return removed
}

// RunCleanup runs CleanupOldChats every cleanup interval until ctx is done.
func (s *ChatService) RunCleanup(ctx context.Context) {
	if s.config.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupOldChats()
		}
	}
}

func truncateString(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}
