package ws

import "sync"

// Registry is the single source of truth for which connections are alive.
// Safe for concurrent use by ingress handlers and the broadcast scheduler;
// callers never hold an external lock. List methods return point-in-time
// slices so iteration tolerates concurrent unregistration.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register adds a connection. Fails if the id is already present.
func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; ok {
		return ErrDuplicateConnection
	}
	r.conns[c.ID] = c
	return nil
}

// Unregister removes a connection and returns it, or nil if it was already
// gone. Idempotent.
func (r *Registry) Unregister(id string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	return c
}

// Get looks up a connection by id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	return c, ok
}

// ListByOrganization returns all live connections of one organization.
func (r *Registry) ListByOrganization(organizationID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0)
	for _, c := range r.conns {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	return out
}

// All returns every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
