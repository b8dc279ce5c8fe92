// Package registry holds the server's live set of PTY sessions behind a
// readers-writer lock. Reads (list, attach, write, resize) outnumber
// writes (create, close) roughly 10:1, so lookups take a read lock and
// only session creation/removal takes the write lock.
package registry

import (
	"fmt"
	"sync"

	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/ptysession"
)

// ErrSessionNotFound is returned by Get when no session with the given id
// exists. Every request handler that looks up a session by id surfaces
// this as the stable "Session <id> not found" error message.
var ErrSessionNotFound = fmt.Errorf("session not found")

// sessionState is the unexported state guarded by the registry's lock.
type sessionState struct {
	sessions map[string]*ptysession.Session
}

// Registry is a concurrency-safe map of session id to *ptysession.Session.
type Registry struct {
	mu    sync.RWMutex
	state sessionState
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{state: sessionState{sessions: make(map[string]*ptysession.Session)}}
}

// WithRead runs fn with a read lock held, for callers that need to look at
// more than one session's worth of state atomically.
func (r *Registry) WithRead(fn func(sessions map[string]*ptysession.Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.state.sessions)
}

// WithWrite runs fn with a write lock held.
func (r *Registry) WithWrite(fn func(sessions map[string]*ptysession.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.state.sessions)
}

// Add inserts a newly created session into the registry.
func (r *Registry) Add(s *ptysession.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.sessions[s.ID()] = s
}

// Get returns the session with the given id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*ptysession.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.state.sessions[id]
	if !ok {
		return nil, fmt.Errorf("Session %s not found: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Remove deletes a session from the registry without closing it; callers
// are responsible for calling Session.Close.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.sessions, id)
}

// List returns a copy-on-read-out SessionInfo projection of every session,
// cloned under the lock and serialized after it is released.
func (r *Registry) List() []protocol.SessionInfo {
	r.mu.RLock()
	infos := make([]protocol.SessionInfo, 0, len(r.state.sessions))
	for _, s := range r.state.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()
	return infos
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state.sessions)
}
