package collab

import (
	"sync"

	"notify-collab/core"
)

// Registry tracks every live connection and the verified identity attached to
// it. It is the authoritative source of who is online, anywhere.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]core.Identity
	byUser map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]core.Identity),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Register binds a connection to its authenticated identity. Returns
// ErrDuplicateConnection if the connection ID is already present.
func (r *Registry) Register(connID string, identity core.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return ErrDuplicateConnection
	}
	r.conns[connID] = identity

	if r.byUser[identity.ID] == nil {
		r.byUser[identity.ID] = make(map[string]struct{})
	}
	r.byUser[identity.ID][connID] = struct{}{}
	return nil
}

// IdentityOf returns the identity bound to a connection, or ErrNotConnected.
func (r *Registry) IdentityOf(connID string) (core.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.conns[connID]
	if !ok {
		return core.Identity{}, ErrNotConnected
	}
	return identity, nil
}

// ConnectionsOf lists every live connection for a user. A user with two open
// tabs has two entries.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		conns = append(conns, connID)
	}
	return conns
}

// Remove deletes a connection. Removing an absent connection is a no-op so
// disconnect cleanup stays idempotent.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if set := r.byUser[identity.ID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, identity.ID)
		}
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
