package storage

import (
	"sort"
	"sync"
)

type MemoryStorage struct {
	chats map[string]*Chat
	mu    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chats: make(map[string]*Chat),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) SaveChat(c *Chat) error {
	if err := validateID(c.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStorage) GetChat(chatID string) (*Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chats[chatID]
	if !exists {
		return nil, ErrChatNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStorage) DeleteChat(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chatID]; !exists {
		return ErrChatNotFound
	}
	delete(m.chats, chatID)
	return nil
}

func (m *MemoryStorage) ListChats(owner string) ([]*ChatIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ChatIndex, 0, len(m.chats))
	for _, c := range m.chats {
		if owner != "" && c.Owner != owner {
			continue
		}
		out = append(out, indexOf(c))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
