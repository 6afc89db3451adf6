package studio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ugc-studio/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
  "id": "snap-1",
  "title": "Cat ad",
  "messages": [
    {"role": "system", "content": "You are a storyboard assistant."},
    {"role": "user", "content": "hello"},
    {"role": "user", "content": [
      {"type": "text", "text": "this product"},
      {"type": "image_url", "image_url": {"url": "https://cdn.example.com/a.png"}},
      {"type": "text", "text": "make it pop"},
      {"type": "image_url", "image_url": {"url": "https://cdn.example.com/b.png"}}
    ]},
    {"role": "assistant", "content": [{"type": "text", "text": "sure"}]}
  ]
}`

func TestFromSnapshot(t *testing.T) {
	var snapshot model.ChatSnapshot
	require.NoError(t, json.Unmarshal([]byte(snapshotJSON), &snapshot))

	msgs := FromSnapshot(snapshot.ID, &snapshot)
	assert.Equal(t, []model.ChatMessage{
		{ID: "snap-1-1", Role: model.RoleUser, Content: "hello"},
		{
			ID:        "snap-1-2",
			Role:      model.RoleUser,
			Content:   "this product\nmake it pop",
			ImageURLs: []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
		},
		{ID: "snap-1-3", Role: model.RoleAssistant, Content: "sure"},
	}, msgs)
}

func TestFromSnapshotNil(t *testing.T) {
	assert.Empty(t, FromSnapshot("x", nil))
}

func TestSnapshotContentRejectsOtherShapes(t *testing.T) {
	var snapshot model.ChatSnapshot
	err := json.Unmarshal([]byte(`{"id":"s","messages":[{"role":"user","content":42}]}`), &snapshot)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidContent)
}

func TestHistoryLoaderLoad(t *testing.T) {
	api := &fakeAPI{fetchFn: func(ctx context.Context, chatID string) (*model.ChatSnapshot, error) {
		return &model.ChatSnapshot{Messages: []model.SnapshotMessage{
			{Role: model.RoleUser, Content: model.StructuredContent(model.TextPart("look"), model.ImagePart("/uploads/1-a.png"))},
			{Role: model.RoleAssistant, Content: model.PlainContent("nice")},
		}}, nil
	}}
	loader := NewHistoryLoader(api, "http://api.local")

	msgs, err := loader.Load(context.Background(), "chat-9")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "chat-9-0", msgs[0].ID)
	assert.Equal(t, []string{"http://api.local/uploads/1-a.png"}, msgs[0].ImageURLs)
	assert.Equal(t, "chat-9-1", msgs[1].ID)
}

func TestHistoryLoaderError(t *testing.T) {
	cause := errors.New("connection refused")
	api := &fakeAPI{fetchFn: func(ctx context.Context, chatID string) (*model.ChatSnapshot, error) {
		return nil, cause
	}}

	_, err := NewHistoryLoader(api, "").Load(context.Background(), "chat-9")

	var loadErr *HistoryLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "chat-9", loadErr.ChatID)
	assert.ErrorIs(t, err, cause)
}
