package studio

import (
	"testing"

	"ugc-studio/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, role model.Role, content string) model.ChatMessage {
	return model.ChatMessage{ID: id, Role: role, Content: content}
}

func TestMessageListMutations(t *testing.T) {
	l := NewMessageList()
	assert.Equal(t, uint64(0), l.Snapshot().Version)

	l.Replace("chat-1", []model.ChatMessage{msg("a", model.RoleAssistant, "hi")})
	l.Append(msg("b", model.RoleUser, "hello"), msg("c", model.RoleAssistant, ""))

	ok := l.Update("c", func(m *model.ChatMessage) { m.Content = "there" })
	require.True(t, ok)

	state := l.Snapshot()
	assert.Equal(t, "chat-1", state.ChatID)
	assert.Equal(t, uint64(3), state.Version)
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "there", state.Messages[2].Content)
}

func TestMessageListUpdateMissingIsNoop(t *testing.T) {
	l := NewMessageList()
	l.Replace("chat-1", []model.ChatMessage{msg("a", model.RoleUser, "x")})
	before := l.Snapshot()

	ok := l.Update("gone", func(m *model.ChatMessage) { m.Content = "changed" })
	assert.False(t, ok)
	assert.Equal(t, before, l.Snapshot())
}

func TestMessageListReplaceDropsOldIDs(t *testing.T) {
	l := NewMessageList()
	l.Replace("chat-1", []model.ChatMessage{msg("placeholder", model.RoleAssistant, "")})
	l.Replace("chat-2", []model.ChatMessage{msg("welcome", model.RoleAssistant, "hi")})

	assert.False(t, l.Update("placeholder", func(m *model.ChatMessage) { m.Content = "late" }))
	_, ok := l.Get("placeholder")
	assert.False(t, ok)
	assert.Equal(t, "chat-2", l.ChatID())
}

func TestMessageListSnapshotIsACopy(t *testing.T) {
	l := NewMessageList()
	l.Replace("chat-1", []model.ChatMessage{{ID: "a", Role: model.RoleUser, ImageURLs: []string{"u1"}}})

	state := l.Snapshot()
	state.Messages[0].Content = "mutated"
	state.Messages[0].ImageURLs[0] = "mutated"

	got, ok := l.Get("a")
	require.True(t, ok)
	assert.Empty(t, got.Content)
	assert.Equal(t, []string{"u1"}, got.ImageURLs)
}

func TestMessageListSubscribeLatestWins(t *testing.T) {
	l := NewMessageList()
	ch, cancel := l.Subscribe()

	initial := <-ch
	assert.Equal(t, uint64(0), initial.Version)

	l.Replace("chat-1", nil)
	l.Append(msg("a", model.RoleUser, "1"))
	l.Append(msg("b", model.RoleUser, "2"))

	latest := <-ch
	assert.Equal(t, uint64(3), latest.Version)
	assert.Len(t, latest.Messages, 2)

	select {
	case s := <-ch:
		t.Fatalf("unexpected extra state %d", s.Version)
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	l.Append(msg("c", model.RoleUser, "3"))
}
