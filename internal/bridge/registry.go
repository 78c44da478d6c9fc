package bridge

import "sync"

// Registry errors. ErrSessionNotFound doubles as the "unknown session"
// protocol error reported to clients; it is never a server fault.
var (
	ErrDuplicateSession = sessionError("session id already registered")
	ErrSessionNotFound  = sessionError("session not found")
)

type sessionError string

func (e sessionError) Error() string { return string(e) }

// Registry is the concurrency-safe map from session id to session. It holds
// only the lookup association; the remote handle stays exclusively owned by
// the session. It is accessed concurrently by the client message handlers
// and by every session's pump.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds the session. Fails if the id is already present.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}
	r.sessions[s.ID] = s
	return nil
}

// Lookup returns the session for id or ErrSessionNotFound.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes the session. Removing an absent id is a no-op: multiple
// termination triggers may race to remove the same session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
