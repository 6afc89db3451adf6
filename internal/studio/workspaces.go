package studio

import (
	"context"
	"sync"
	"time"

	"ugc-studio/pkg/logger"
)

// Workspace is one browser session's controller.
type Workspace struct {
	*Controller
	SessionID string

	lastSeen time.Time
}

// Workspaces keeps a controller per session id and evicts idle ones.
type Workspaces struct {
	mu    sync.Mutex
	items map[string]*Workspace

	newAPI func(sessionID string) API
	opts   Options
	ttl    time.Duration
	now    func() time.Time
}

func NewWorkspaces(newAPI func(sessionID string) API, opts Options, ttl time.Duration) *Workspaces {
	return &Workspaces{
		items:  make(map[string]*Workspace),
		newAPI: newAPI,
		opts:   opts,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the workspace for sessionID, creating it on first use.
func (w *Workspaces) Get(sessionID string) *Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.items[sessionID]
	if !ok {
		ws = &Workspace{
			Controller: NewController(w.newAPI(sessionID), w.opts),
			SessionID:  sessionID,
		}
		w.items[sessionID] = ws
		logger.Debugf("created workspace for session %s", sessionID)
	}
	ws.lastSeen = w.now()
	return ws
}

func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Cleanup drops workspaces idle for longer than the TTL. Workspaces with a
// send in flight or an open event subscription are kept.
func (w *Workspaces) Cleanup() int {
	if w.ttl <= 0 {
		return 0
	}

	w.mu.Lock()
	cutoff := w.now().Add(-w.ttl)
	var expired []*Workspace
	for id, ws := range w.items {
		if ws.lastSeen.Before(cutoff) && !ws.Sending() && ws.List().Subscribers() == 0 {
			expired = append(expired, ws)
			delete(w.items, id)
		}
	}
	w.mu.Unlock()

	for _, ws := range expired {
		ws.Close()
		logger.Infof("Cleaned up idle workspace: %s", ws.SessionID)
	}
	return len(expired)
}

// Run evicts idle workspaces every interval until ctx is done.
func (w *Workspaces) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Cleanup()
		}
	}
}

// CloseAll waits for every in-flight send and drops all workspaces.
func (w *Workspaces) CloseAll() {
	w.mu.Lock()
	items := w.items
	w.items = make(map[string]*Workspace)
	w.mu.Unlock()

	for _, ws := range items {
		ws.Close()
	}
}
