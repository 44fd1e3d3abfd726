package relay

import "sync"

// Registry maps currently-reachable identities to their live clients. It is
// authoritative only for "is this identity online right now"; everything
// durable lives in the store. It never touches storage itself.
//
// All access is serialized through the internal mutex: the presence
// broadcaster and the message router must observe every mutation
// consistently.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]*Client)}
}

// Put installs a client for an identity, replacing any existing entry.
// Returns the replaced client, if any, so the caller can close it.
func (r *Registry) Put(userID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.byUser[userID]
	r.byUser[userID] = c
	if old == c {
		return nil
	}
	return old
}

// Get returns the live client for an identity.
func (r *Registry) Get(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byUser[userID]
	return c, ok
}

// Remove drops the entry for an identity, but only if it still points at
// the given client. A replaced connection must not evict its successor.
func (r *Registry) Remove(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byUser[userID]; ok && (c == nil || cur == c) {
		delete(r.byUser, userID)
	}
}

// IsReachable reports whether the identity has a live client.
func (r *Registry) IsReachable(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[userID]
	return ok
}

// All returns a snapshot of every live entry for broadcast iteration.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.byUser))
	for _, c := range r.byUser {
		clients = append(clients, c)
	}
	return clients
}

// EvictSession removes every entry bound to the given logical session,
// except the one for keepUserID. Guards against stale multi-identity
// sessions: a client instance re-identifying as a different user must not
// leave its old identity looking online. Returns the evicted clients.
func (r *Registry) EvictSession(sessionID, keepUserID string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Client
	for userID, c := range r.byUser {
		if userID == keepUserID {
			continue
		}
		if c.SessionID() == sessionID {
			delete(r.byUser, userID)
			evicted = append(evicted, c)
		}
	}
	return evicted
}
