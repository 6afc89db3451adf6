// Package studio holds the client-side chat state: the canonical message
// list, the event reconciler, history loading and the per-send controller.
package studio

import (
	"sync"

	"ugc-studio/internal/model"
)

// ListState is a point-in-time copy of a MessageList.
type ListState struct {
	ChatID   string              `json:"chatId"`
	Version  uint64              `json:"version"`
	Messages []model.ChatMessage `json:"messages"`
}

// MessageList is the canonical, versioned list of messages for the active
// chat. Every mutation bumps the version and notifies subscribers.
type MessageList struct {
	mu       sync.RWMutex
	chatID   string
	version  uint64
	messages []model.ChatMessage
	index    map[string]int

	subs    map[int]chan ListState
	nextSub int
}

func NewMessageList() *MessageList {
	return &MessageList{
		index: make(map[string]int),
		subs:  make(map[int]chan ListState),
	}
}

// Replace swaps the whole list and scopes it to chatID.
func (l *MessageList) Replace(chatID string, msgs []model.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.chatID = chatID
	l.messages = make([]model.ChatMessage, 0, len(msgs))
	l.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		l.index[m.ID] = len(l.messages)
		l.messages = append(l.messages, m.Clone())
	}
	l.bumpLocked()
}

func (l *MessageList) Append(msgs ...model.ChatMessage) {
	if len(msgs) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range msgs {
		l.index[m.ID] = len(l.messages)
		l.messages = append(l.messages, m.Clone())
	}
	l.bumpLocked()
}

// Update applies fn to the message with the given id. It reports false and
// leaves the list untouched when the id is not present.
func (l *MessageList) Update(id string, fn func(*model.ChatMessage)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}
	fn(&l.messages[i])
	l.bumpLocked()
	return true
}

func (l *MessageList) Get(id string) (model.ChatMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return model.ChatMessage{}, false
	}
	return l.messages[i].Clone(), true
}

func (l *MessageList) ChatID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chatID
}

func (l *MessageList) Snapshot() ListState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stateLocked()
}

// Subscribe returns a channel that always holds the most recent state. Slow
// readers skip intermediate versions. The cancel func closes the channel.
func (l *MessageList) Subscribe() (<-chan ListState, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan ListState, 1)
	ch <- l.stateLocked()
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports how many subscriptions are still open.
func (l *MessageList) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

func (l *MessageList) stateLocked() ListState {
	msgs := make([]model.ChatMessage, len(l.messages))
	for i, m := range l.messages {
		msgs[i] = m.Clone()
	}
	return ListState{ChatID: l.chatID, Version: l.version, Messages: msgs}
}

func (l *MessageList) bumpLocked() {
	l.version++
	if len(l.subs) == 0 {
		return
	}

	state := l.stateLocked()
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}
