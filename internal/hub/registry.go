package hub

import (
	"sync"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/event"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/pkg/metrics"
)

// Session is one live transport for an authenticated user. Implemented by
// *Client; tests substitute fakes.
type Session interface {
	UserID() string
	// TrySend enqueues an event without blocking the caller indefinitely.
	// A false return means the event was dropped (slow or closed session).
	TrySend(ev event.WsEvent) bool
	// Close tears the session down; used when a newer connection replaces it.
	Close()
}

// Registry tracks the single live session per user id. A new registration
// for the same user silently replaces the previous entry (last-connection-
// wins); the displaced session is closed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Register installs s as the user's live session and returns the session it
// displaced, if any. The caller is responsible for closing the displaced
// session outside the registry lock.
func (r *Registry) Register(s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.UserID()]
	r.sessions[s.UserID()] = s
	if prev == nil {
		metrics.ConnectionsActive.Inc()
	}
	return prev
}

// Resolve returns the user's live session, or nil. A miss is not an error:
// the user simply learns of events on their next fetch.
func (r *Registry) Resolve(userID string) Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// Unregister removes the user's entry only if it still maps to s, so a
// stale disconnect never evicts a newer replacement session.
func (r *Registry) Unregister(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.UserID()]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.UserID())
	metrics.ConnectionsActive.Dec()
	return true
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// UserIDs returns a snapshot of connected user ids.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
