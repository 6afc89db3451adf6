package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ugc-studio/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChat(id, owner string, updated time.Time) *Chat {
	return &Chat{
		ChatSnapshot: model.ChatSnapshot{
			ID:        id,
			Title:     "chat " + id,
			CreatedAt: updated.Add(-time.Minute),
			UpdatedAt: updated,
			Messages: []model.SnapshotMessage{
				{Role: model.RoleSystem, Content: model.PlainContent("sys")},
				{Role: model.RoleUser, Content: model.StructuredContent(model.TextPart("hi"), model.ImagePart("http://x/a.png"))},
				{Role: model.RoleAssistant, Content: model.PlainContent("hello")},
			},
		},
		Owner: owner,
	}
}

func backends(t *testing.T) map[string]func() Storage {
	return map[string]func() Storage{
		"memory": func() Storage { return NewMemoryStorage() },
		"disk":   func() Storage { return NewDiskStorage(t.TempDir(), 2) },
	}
}

func TestStorageRoundTrip(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			require.NoError(t, s.Init())
			defer s.Close()

			now := time.Now().UTC().Truncate(time.Second)
			in := newChat("c1", "owner-a", now)
			require.NoError(t, s.SaveChat(in))

			in.Messages[2].Content = model.PlainContent("mutated after save")

			got, err := s.GetChat("c1")
			require.NoError(t, err)
			assert.Equal(t, "owner-a", got.Owner)
			assert.True(t, got.UpdatedAt.Equal(now))
			require.Len(t, got.Messages, 3)
			assert.Equal(t, "hello", got.Messages[2].Content.Text)
			assert.True(t, got.Messages[1].Content.Structured)
			assert.Equal(t, "http://x/a.png", got.Messages[1].Content.Parts[1].ImageURL.URL)

			_, err = s.GetChat("missing")
			assert.ErrorIs(t, err, ErrChatNotFound)
		})
	}
}

func TestStorageListByOwner(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			require.NoError(t, s.Init())

			base := time.Now().UTC()
			require.NoError(t, s.SaveChat(newChat("old", "a", base.Add(-time.Hour))))
			require.NoError(t, s.SaveChat(newChat("new", "a", base)))
			require.NoError(t, s.SaveChat(newChat("other", "b", base)))

			rows, err := s.ListChats("a")
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "new", rows[0].ID)
			assert.Equal(t, "old", rows[1].ID)

			all, err := s.ListChats("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStorageDelete(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			require.NoError(t, s.Init())

			require.NoError(t, s.SaveChat(newChat("c1", "a", time.Now())))
			require.NoError(t, s.DeleteChat("c1"))
			assert.ErrorIs(t, s.DeleteChat("c1"), ErrChatNotFound)

			_, err := s.GetChat("c1")
			assert.ErrorIs(t, err, ErrChatNotFound)

			rows, err := s.ListChats("")
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestStorageRejectsPathIDs(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			require.NoError(t, s.Init())
			assert.ErrorIs(t, s.SaveChat(newChat("../escape", "a", time.Now())), ErrInvalidData)
		})
	}
}

func TestDiskStorageSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStorage(dir, 1)
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveChat(newChat("c1", "a", time.Now())))
	require.NoError(t, s.SaveChat(newChat("c2", "a", time.Now())))
	require.NoError(t, s.Close())

	reopened := NewDiskStorage(dir, 1)
	require.NoError(t, reopened.Init())
	rows, err := reopened.ListChats("a")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	got, err := reopened.GetChat("c1")
	require.NoError(t, err)
	assert.Equal(t, "chat c1", got.Title)
}

func TestDiskStorageRebuildsLostIndex(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStorage(dir, 10)
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveChat(newChat("c1", "a", time.Now())))
	require.NoError(t, os.Remove(filepath.Join(dir, indexFile)))

	reopened := NewDiskStorage(dir, 10)
	require.NoError(t, reopened.Init())
	rows, err := reopened.ListChats("")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].ID)
}

func TestDiskStorageBackup(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStorage(dir, 10)
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveChat(newChat("c1", "a", time.Now())))
	require.NoError(t, s.Backup())

	matches, err := filepath.Glob(filepath.Join(dir, backupDir, "backup_*", chatsDir, "c1.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
