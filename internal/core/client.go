package core

// Identity is an authenticated user as supplied by the upstream auth
// collaborator. The core never issues or verifies identities itself.
type Identity struct {
	UserID   int64
	Username string
}

// Client is one live transport (a websocket connection) of an identity.
// An identity may hold several clients at once (multiple tabs).
type Client struct {
	ID       string
	Identity Identity
	Events   chan Event
}

// DefaultEventQueueSize bounds the per-transport send queue.
const DefaultEventQueueSize = 32

// NewClient constructs a client with a bounded event queue.
func NewClient(id string, identity Identity, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan Event, queueSize),
	}
}

// TrySend enqueues an event without blocking. A saturated queue drops
// the new event so one stalled consumer never delays the rest.
func (c *Client) TrySend(ev Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
