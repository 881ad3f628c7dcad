package ws

import (
	"sort"
	"sync"
)

// Registry binds each online username to its single live connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register binds c and returns the connection it superseded, if any.
func (r *Registry) Register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[c.Username()]
	r.clients[c.Username()] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes the binding for username. It is idempotent.
func (r *Registry) Unregister(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[username]; !ok {
		return false
	}
	delete(r.clients, username)
	return true
}

// Release removes c only while it is still the bound connection, so a
// superseded connection tearing down never evicts its replacement.
func (r *Registry) Release(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[c.Username()] != c {
		return false
	}
	delete(r.clients, c.Username())
	return true
}

func (r *Registry) Resolve(username string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[username]
	return c, ok
}

// Snapshot returns the online usernames, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Clients returns the bound connections at this instant.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
