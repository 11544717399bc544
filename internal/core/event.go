package core

import (
	"encoding/json"
	"time"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomState delivers the full member snapshot to a newly
	// admitted participant.
	EventRoomState EventKind = iota
	// EventMemberJoined notifies the room about a new active member.
	EventMemberJoined
	// EventMemberLeft notifies the room about a departed member.
	EventMemberLeft
	// EventHostChanged notifies the room that the host migrated.
	EventHostChanged
	// EventRoomEnded notifies that the room transitioned to ended.
	EventRoomEnded
	// EventChatMessage carries a room chat message.
	EventChatMessage
	// EventSignalOffer carries an opaque media offer to one target.
	EventSignalOffer
	// EventSignalAnswer carries an opaque media answer to one target.
	EventSignalAnswer
	// EventSignalCandidate carries an opaque ICE candidate to one target.
	EventSignalCandidate
	// EventMuteToggle notifies the room that a member's mute flag changed.
	EventMuteToggle
	// EventVideoToggle notifies the room that a member's video flag changed.
	EventVideoToggle
	// EventHandRaised notifies the room that a member's hand flag changed.
	EventHandRaised
	// EventAudioConnectRequest asks members to (re)negotiate media with
	// a peer, either a specific target or a newcomer.
	EventAudioConnectRequest
	// EventError notifies a client about a recoverable in-session error.
	EventError
)

// MemberInfo is the externally visible state of an active member.
type MemberInfo struct {
	UserID       int64
	Username     string
	Role         store.Role
	JoinedAt     time.Time
	IsMuted      bool
	HandRaised   bool
	VideoEnabled bool
}

// ChatNote is a chat message as carried by an event.
type ChatNote struct {
	ID     int64
	Text   string
	SentAt time.Time
}

// Event is sent to clients to describe what happened in a room.
// Payload stays opaque end to end; the core never inspects it.
type Event struct {
	Kind     EventKind
	RoomID   int64
	RoomUUID string
	From     Identity
	Target   int64
	Flag     bool
	Payload  json.RawMessage
	Member   *MemberInfo
	Members  []MemberInfo
	Chat     *ChatNote
	Err      *CoreError
}
