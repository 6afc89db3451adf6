package studio

import (
	"context"
	"fmt"
	"strconv"

	"ugc-studio/internal/client"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
)

type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, chatID string) (*model.ChatSnapshot, error)
}

type HistoryLoadError struct {
	ChatID string
	Err    error
}

func (e *HistoryLoadError) Error() string {
	return fmt.Sprintf("load history for chat %s: %v", e.ChatID, e.Err)
}

func (e *HistoryLoadError) Unwrap() error {
	return e.Err
}

type HistoryLoader struct {
	fetcher SnapshotFetcher
	baseURL string
}

func NewHistoryLoader(fetcher SnapshotFetcher, baseURL string) *HistoryLoader {
	return &HistoryLoader{fetcher: fetcher, baseURL: baseURL}
}

// Load fetches the persisted conversation and rebuilds it as chat messages.
// Server-relative image URLs are made absolute.
func (h *HistoryLoader) Load(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	snapshot, err := h.fetcher.FetchSnapshot(ctx, chatID)
	if err != nil {
		metrics.HistoryLoads.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, &HistoryLoadError{ChatID: chatID, Err: err}
	}
	metrics.HistoryLoads.WithLabelValues(metrics.OutcomeOK).Inc()

	id := snapshot.ID
	if id == "" {
		id = chatID
	}
	msgs := FromSnapshot(id, snapshot)
	for i := range msgs {
		for j, u := range msgs[i].ImageURLs {
			msgs[i].ImageURLs[j] = client.ResolveURL(h.baseURL, u)
		}
	}
	return msgs, nil
}

// FromSnapshot converts a snapshot into chat messages. System messages are
// dropped; ids are "<snapshotID>-<i>" where i is the position before
// filtering.
func FromSnapshot(snapshotID string, snapshot *model.ChatSnapshot) []model.ChatMessage {
	if snapshot == nil {
		return nil
	}

	msgs := make([]model.ChatMessage, 0, len(snapshot.Messages))
	for i, sm := range snapshot.Messages {
		if sm.Role != model.RoleUser && sm.Role != model.RoleAssistant {
			continue
		}

		text, images := sm.Content.Flatten()
		msg := model.ChatMessage{
			ID:      snapshotID + "-" + strconv.Itoa(i),
			Role:    sm.Role,
			Content: text,
		}
		if len(images) > 0 {
			msg.ImageURLs = images
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
