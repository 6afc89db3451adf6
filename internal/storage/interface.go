package storage

import (
	"time"

	"ugc-studio/internal/model"
)

// Chat is a persisted conversation together with the session that owns it.
type Chat struct {
	model.ChatSnapshot
	Owner string `json:"owner,omitempty"`
}

// Clone returns a deep copy so callers never share message slices with the
// store.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Messages = make([]model.SnapshotMessage, len(c.Messages))
	for i, m := range c.Messages {
		cp.Messages[i] = m
		if m.Content.Parts != nil {
			cp.Messages[i].Content.Parts = append([]model.ContentPart(nil), m.Content.Parts...)
		}
	}
	return &cp
}

// ChatIndex is the listing row kept for every chat.
type ChatIndex struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *ChatIndex) Summary() model.ChatSummary {
	return model.ChatSummary{ID: i.ID, Title: i.Title, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt}
}

func indexOf(c *Chat) *ChatIndex {
	return &ChatIndex{ID: c.ID, Owner: c.Owner, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

type Storage interface {
	// SaveChat creates or overwrites the chat with c.ID.
	SaveChat(c *Chat) error
	GetChat(chatID string) (*Chat, error)
	DeleteChat(chatID string) error
	// ListChats returns the chats owned by owner, most recently updated
	// first. An empty owner lists every chat.
	ListChats(owner string) ([]*ChatIndex, error)

	Init() error
	Close() error
	Backup() error
}
