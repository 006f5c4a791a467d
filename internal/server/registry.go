package server

import "sync"

// Registry tracks which users have live connections. A user may hold
// multiple connections at once, one per device.
type Registry struct {
	mu    sync.RWMutex
	conns map[int]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]map[*Client]struct{}),
	}
}

// Register adds a connection for a user. It reports whether this is the
// user's first live connection, i.e. the user just came online.
func (r *Registry) Register(userId int, c *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userId]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[userId] = set
	}
	set[c] = struct{}{}

	return !ok
}

// Unregister removes a connection for a user. It reports whether the
// user has no connections left, i.e. the user just went offline.
// Removing a connection that was never registered is a no-op.
func (r *Registry) Unregister(userId int, c *Client) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userId]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userId)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userId]) > 0
}

// ConnectionsFor returns the user's live connections.
func (r *Registry) ConnectionsFor(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.conns[userId]))
	for c := range r.conns[userId] {
		clients = append(clients, c)
	}
	return clients
}

// AllClients returns every live connection across all users.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for _, set := range r.conns {
		for c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}

// OnlineCount returns the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
