package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/auth"
	"github.com/Aswin1819/talkmate-server/internal/store"
)

// Controller orchestrates the room lifecycle: connection accept and
// reject, session transitions, ledger writes and registry broadcasts,
// in the order the protocol requires. It holds no state of its own.
type Controller struct {
	sessions *SessionTable
	registry *Registry
	relay    *Relay
	ledger   *Ledger
	st       store.Store
	log      *zerolog.Logger
}

// NewController wires the coordinator components together.
func NewController(sessions *SessionTable, registry *Registry, relay *Relay, ledger *Ledger, st store.Store, logger *zerolog.Logger) *Controller {
	return &Controller{
		sessions: sessions,
		registry: registry,
		relay:    relay,
		ledger:   ledger,
		st:       st,
		log:      logger,
	}
}

// Connect runs the connection-accept sequence: authenticate, look up
// the live room, check the credential for private rooms, admit (the
// session announces the newcomer to the room while it still holds the
// transition lock), then register the transport, deliver the room
// snapshot and ask existing members to initiate media negotiation.
// Any failure closes the attempt with no partial state.
func (c *Controller) Connect(ctx context.Context, id Identity, roomID int64, credential string, client *Client) (*Session, error) {
	if id.UserID == 0 {
		return nil, ErrUnauthenticated
	}

	sess, err := c.sessions.GetOrCreate(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if sess.Private() {
		if credential == "" || auth.ComparePassword(sess.CredentialHash(), credential) != nil {
			return nil, ErrInvalidCredential
		}
	}

	res, err := sess.Admit(ctx, id)
	if err != nil {
		return nil, err
	}

	c.registry.Register(client)

	client.TrySend(Event{
		Kind:     EventRoomState,
		RoomID:   sess.RoomID(),
		RoomUUID: sess.RoomUUID(),
		Members:  sess.Snapshot(),
	})

	if !res.Attached {
		// Drive client-side mesh formation: existing members open media
		// toward the newcomer.
		c.broadcast(sess, Event{
			Kind:   EventAudioConnectRequest,
			RoomID: sess.RoomID(),
			From:   id,
			Member: &res.Member,
		}, id.UserID)
	}

	return sess, nil
}

// Disconnect runs the leave sequence exactly once per membership:
// dismiss (the session broadcasts the departure and any host or room
// transition under its own lock), then accrue the returned duration.
// While the identity still holds another transport the membership
// survives and only the transport is dropped. Duplicate disconnects
// are no-ops.
func (c *Controller) Disconnect(ctx context.Context, sess *Session, client *Client) {
	_, remaining := c.registry.Unregister(client)
	if remaining > 0 {
		return
	}

	userID := client.Identity.UserID
	res := sess.Dismiss(ctx, userID)
	if !res.Dismissed {
		return
	}

	if err := c.ledger.Accrue(ctx, userID, res.Duration); err != nil {
		c.log.Error().Err(err).Int64("user_id", userID).Msg("presence accrual failed")
	}

	if res.Ended {
		c.sessions.Remove(sess.RoomID())
	}
}

// HandleChat persists a chat message and fans it out to the whole room,
// sender included. A failed write is logged and the message still
// delivered; mid-session persistence trouble never drops live chat.
func (c *Controller) HandleChat(ctx context.Context, sess *Session, from Identity, text string) {
	if text == "" {
		return
	}

	msg := &store.Message{
		RoomID: sess.RoomID(),
		UserID: from.UserID,
		Body:   text,
		SentAt: time.Now().UTC(),
	}
	if err := c.st.SaveMessage(ctx, msg); err != nil {
		c.log.Warn().Err(err).Int64("room_id", sess.RoomID()).Msg("failed to persist chat message")
	}

	c.broadcast(sess, Event{
		Kind:   EventChatMessage,
		RoomID: sess.RoomID(),
		From:   from,
		Chat:   &ChatNote{ID: msg.ID, Text: text, SentAt: msg.SentAt},
	}, 0)
}

// HandleSignal relays one opaque signaling payload point-to-point.
func (c *Controller) HandleSignal(sess *Session, from Identity, kind EventKind, target int64, payload json.RawMessage) error {
	return c.relay.Relay(sess, from, target, Event{
		Kind:    kind,
		Payload: payload,
	})
}

// HandleToggle applies a flag change and announces it to the room. A
// missing membership is a silent no-op.
func (c *Controller) HandleToggle(ctx context.Context, sess *Session, from Identity, flag Flag, value bool) {
	if !sess.SetFlag(ctx, from.UserID, flag, value) {
		return
	}

	var kind EventKind
	switch flag {
	case FlagMuted:
		kind = EventMuteToggle
	case FlagVideoEnabled:
		kind = EventVideoToggle
	case FlagHandRaised:
		kind = EventHandRaised
	}

	c.broadcast(sess, Event{
		Kind:   kind,
		RoomID: sess.RoomID(),
		From:   from,
		Flag:   value,
	}, 0)
}

// HandleAudioConnectRequest relays a client-initiated media
// (re)connection request to a specific peer.
func (c *Controller) HandleAudioConnectRequest(sess *Session, from Identity, target int64) error {
	return c.relay.Relay(sess, from, target, Event{
		Kind: EventAudioConnectRequest,
	})
}

// broadcast publishes to every member's transports, reading the member
// set from the session at call time so departed users never receive
// room traffic.
func (c *Controller) broadcast(sess *Session, ev Event, exclude int64) int {
	return c.registry.Broadcast(sess.MemberIDs(), ev, exclude)
}
