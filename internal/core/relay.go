package core

import (
	"github.com/rs/zerolog"
)

// Relay routes opaque signaling payloads between two identified
// participants of a room. It is stateless: no retry, no queue; a
// momentarily unreachable target simply drops the message, the client
// layer is expected to resend.
type Relay struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewRelay constructs a signal relay over the given registry.
func NewRelay(registry *Registry, logger *zerolog.Logger) *Relay {
	return &Relay{registry: registry, log: logger}
}

// Relay validates that the target is an active member of the session's
// room and forwards the event point-to-point. Payloads pass through
// byte for byte. A target without an active membership yields
// ErrTargetNotInRoom and nothing is delivered, so departed users can
// never receive room traffic.
func (r *Relay) Relay(sess *Session, from Identity, target int64, ev Event) error {
	if !sess.IsActive(target) {
		r.log.Debug().Int64("room_id", sess.RoomID()).Int64("from", from.UserID).
			Int64("target", target).Msg("dropping signal for non-member target")
		return ErrTargetNotInRoom
	}

	ev.RoomID = sess.RoomID()
	ev.From = from
	ev.Target = target
	r.registry.SendTo(target, ev)
	return nil
}
