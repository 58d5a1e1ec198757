package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

// Registry indexes live coordinators for the HTTP listing endpoints.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Coordinator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Coordinator)}
}

// Add registers c under its id.
func (r *Registry) Add(c *Coordinator) {
	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()
}

// Remove forgets the session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// List returns registered sessions, oldest first.
func (r *Registry) List() []chat.SessionInfo {
	r.mu.RLock()
	infos := make([]chat.SessionInfo, 0, len(r.sessions))
	for _, c := range r.sessions {
		infos = append(infos, c.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// ShutdownAll asks every registered session to close.
func (r *Registry) ShutdownAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.sessions {
		c.Shutdown()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Drain waits until every session has been removed or ctx ends.
func (r *Registry) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for r.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
