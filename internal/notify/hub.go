// Package notify turns change notifications from the status store into
// wake-ups for the sessions watching a workspace. A wake-up is only a hint:
// the session always re-reads the full snapshot.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Source delivers workspace change notifications to a Hub until ctx is done.
type Source interface {
	Run(ctx context.Context, hub *Hub) error
	Name() string
}

// Hub maps workspace ids to the wake funcs registered for them.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]func()
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]func())}
}

// Register adds wake for workspaceID and returns the func that removes it.
func (h *Hub) Register(workspaceID string, wake func()) (unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	if h.subs[workspaceID] == nil {
		h.subs[workspaceID] = make(map[uint64]func())
	}
	h.subs[workspaceID][id] = wake

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[workspaceID], id)
			if len(h.subs[workspaceID]) == 0 {
				delete(h.subs, workspaceID)
			}
		})
	}
}

// Notify wakes every func registered for workspaceID and returns how many
// it woke. Wake funcs must not block.
func (h *Hub) Notify(workspaceID string) int {
	h.mu.RLock()
	wakes := make([]func(), 0, len(h.subs[workspaceID]))
	for _, fn := range h.subs[workspaceID] {
		wakes = append(wakes, fn)
	}
	h.mu.RUnlock()

	for _, fn := range wakes {
		fn()
	}
	return len(wakes)
}

// Watched reports how many workspaces have at least one registration.
func (h *Hub) Watched() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Message is the JSON payload published on a change.
type Message struct {
	WorkspaceID string `json:"workspace_id"`
	Table       string `json:"table,omitempty"`
}

// ParsePayload extracts the workspace id from a notification payload. It
// accepts a Message as JSON or a bare workspace id.
func ParsePayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ""
	}
	if strings.HasPrefix(payload, "{") {
		var m Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return ""
		}
		return strings.TrimSpace(m.WorkspaceID)
	}
	return payload
}
