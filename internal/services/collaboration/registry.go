package collaboration

import "sync"

// ConnectionSnapshot is a copy of a connection's attributes at a point in
// time. The lifecycle manager uses the snapshot returned by Remove to
// broadcast a departure with identity info after the entry is gone.
type ConnectionSnapshot struct {
	ID          string
	UserID      string
	UserName    string
	Color       string
	WorkspaceID string
	PageID      string
}

// connection is the registry's internal record for one live transport
// session. The registry exclusively owns these; everything else holds only
// connection ids or user ids.
type connection struct {
	ConnectionSnapshot
	session *Session
}

// Registry holds the set of live connections and their per-connection
// attributes. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register inserts a new entry with all identity fields empty. Must be called
// exactly once per connection id.
func (r *Registry) Register(connID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &connection{
		ConnectionSnapshot: ConnectionSnapshot{ID: connID},
		session:            s,
	}
}

// Identify attaches user identity to a connection. A no-op if the connection
// is unknown (already closed) so racing handlers never fail the hot path.
func (r *Registry) Identify(connID, userID, userName, color string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.UserID = userID
		c.UserName = userName
		c.Color = color
	}
}

// SetWorkspace updates the connection's workspace scope field. The caller is
// responsible for updating the scope index in the same logical step.
func (r *Registry) SetWorkspace(connID, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.WorkspaceID = workspaceID
	}
}

// SetPage updates the connection's page scope field.
func (r *Registry) SetPage(connID, pageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.PageID = pageID
	}
}

// Snapshot returns a copy of the connection's current attributes.
func (r *Registry) Snapshot(connID string) (ConnectionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return ConnectionSnapshot{}, false
	}
	return c.ConnectionSnapshot, true
}

// SessionOf returns the transport session for a connection id.
func (r *Registry) SessionOf(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return c.session, true
}

// Remove deletes the connection and returns its last known snapshot, or nil
// if it was already removed. Calling Remove twice for the same id yields nil
// the second time, which is what makes disconnect teardown idempotent.
func (r *Registry) Remove(connID string) *ConnectionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	snap := c.ConnectionSnapshot
	return &snap
}

// UserConnectionsOnPage counts live connections of userID whose current page
// is pageID. The presence store is cleared only when this drops to zero, so a
// user with two tabs on the same page keeps their cursor when one tab closes.
func (r *Registry) UserConnectionsOnPage(userID, pageID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		if c.UserID == userID && c.PageID == pageID {
			n++
		}
	}
	return n
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All returns the sessions of every live connection, copied for safe
// iteration during shutdown.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.session)
	}
	return out
}
