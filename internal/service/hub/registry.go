package hub

import "sync"

// Conn is a live connection the hub can push frames to.
type Conn interface {
	Send(frame any) error
	Close() error
}

// Registry maps a user id to the user's live connection. The last registration for a user
// wins; the evicted connection stays open until its own read loop ends.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Conn),
	}
}

// Register stores conn for userID and returns the connection it replaced, if any.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.connections[userID]
	r.connections[userID] = conn
	return previous
}

// Get returns the live connection for userID.
func (r *Registry) Get(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[userID]
	return conn, ok
}

// Remove deletes the entry for userID only while it still points at conn.
func (r *Registry) Remove(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.connections[userID]; ok && current == conn {
		delete(r.connections, userID)
		return true
	}
	return false
}

// Len reports the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, conn := range r.connections {
		conn.Close()
		delete(r.connections, userID)
	}
}
