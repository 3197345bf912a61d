package session

import (
	"sort"
	"sync"
)

// Registry is the in-memory lookup of running sessions for one game type.
// It holds no policy: sessions are added, looked up and removed.
type Registry[S Session] struct {
	mu       sync.RWMutex
	sessions map[string]S
}

// NewRegistry constructs an empty registry
func NewRegistry[S Session]() *Registry[S] {
	return &Registry[S]{sessions: make(map[string]S)}
}

func (r *Registry[S]) Add(s S) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry[S]) Get(id string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the session and reports whether it was present
func (r *Registry[S]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// All returns a snapshot of the registered sessions, oldest first
func (r *Registry[S]) All() []S {
	r.mu.RLock()
	out := make([]S, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes and returns every session matching dead
func (r *Registry[S]) Sweep(dead func(S) bool) []S {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []S
	for id, s := range r.sessions {
		if dead(s) {
			delete(r.sessions, id)
			removed = append(removed, s)
		}
	}
	return removed
}
