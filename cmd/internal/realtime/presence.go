package realtime

import (
	"sync"

	v1 "sparkwave/shared/contracts/realtime/v1"

	"sparkwave/cmd/internal/metrics"
)

// Registry tracks which users are online, with at most one live connection
// per user. A second connection for the same user supersedes the first.
//
// It also serves as the live-push side of the delivery router: TryPush
// resolves the recipient's connection and enqueues without blocking.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]*Client
	metrics *metrics.Collector
}

// NewRegistry constructs an empty presence registry. mc may be nil.
func NewRegistry(mc *metrics.Collector) *Registry {
	return &Registry{
		byUser:  make(map[string]*Client),
		metrics: mc,
	}
}

// Bind installs c as the live connection for its user and returns the
// superseded connection, if any. The caller owns closing the superseded
// client; the registry only swaps the pointer.
func (r *Registry) Bind(c *Client) (superseded *Client) {
	r.mu.Lock()
	old := r.byUser[c.UserID]
	r.byUser[c.UserID] = c
	n := len(r.byUser)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	return old
}

// Unbind removes c from the registry and reports whether it was removed.
// The pointer comparison guards the stale-disconnect race: a connection that
// was superseded must not unbind its successor.
func (r *Registry) Unbind(c *Client) bool {
	r.mu.Lock()
	cur, ok := r.byUser[c.UserID]
	removed := ok && cur == c
	if removed {
		delete(r.byUser, c.UserID)
	}
	n := len(r.byUser)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	return removed
}

// Lookup returns the live connection for userID, or nil.
func (r *Registry) Lookup(userID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Online reports whether userID has a live connection.
func (r *Registry) Online(userID string) bool {
	return r.Lookup(userID) != nil
}

// Snapshot returns the IDs of all online users.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// TryPush delivers env to userID's live connection, if any.
// Implements the delivery router's Pusher.
func (r *Registry) TryPush(userID string, env v1.Envelope) bool {
	return r.Lookup(userID).TrySend(env)
}

// BroadcastExcept enqueues env on every live connection except exceptUserID.
// Slow consumers are skipped, not waited on.
func (r *Registry) BroadcastExcept(exceptUserID string, env v1.Envelope) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.byUser))
	for id, c := range r.byUser {
		if id != exceptUserID {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.TrySend(env)
	}
}
