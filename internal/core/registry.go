package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps identities to their live transports. It supports
// targeted send and group broadcast; it does not own room membership,
// the member set is supplied by the session at broadcast time.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[*Client]struct{}
	log   *zerolog.Logger
}

// NewRegistry constructs an empty connection registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[int64]map[*Client]struct{}),
		log:   logger,
	}
}

// Register adds a transport for the client's identity.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.Identity.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[c.Identity.UserID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a transport. It reports whether the transport was
// registered and how many transports the identity still holds.
func (r *Registry) Unregister(c *Client) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.Identity.UserID]
	if !ok {
		return false, 0
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		removed = true
	}
	remaining = len(set)
	if remaining == 0 {
		delete(r.conns, c.Identity.UserID)
	}
	return removed, remaining
}

// HasTransports reports whether the identity holds any live transport.
func (r *Registry) HasTransports(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// SendTo delivers an event to every transport of one identity. Returns
// true if at least one transport accepted it. Delivery failures are
// logged and swallowed.
func (r *Registry) SendTo(userID int64, ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := false
	for c := range r.conns[userID] {
		if c.TrySend(ev) {
			delivered = true
		} else {
			r.log.Warn().Str("conn_id", c.ID).Int64("user_id", userID).Msg("event queue full, dropping event")
		}
	}
	return delivered
}

// Broadcast delivers an event to every transport of every listed member,
// optionally excluding one identity. Returns the number of transports
// that accepted the event.
func (r *Registry) Broadcast(members []int64, ev Event, exclude int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, userID := range members {
		if userID == exclude {
			continue
		}
		for c := range r.conns[userID] {
			if c.TrySend(ev) {
				count++
			} else {
				r.log.Warn().Str("conn_id", c.ID).Int64("user_id", userID).Msg("event queue full, dropping broadcast")
			}
		}
	}
	return count
}
