package core

import "errors"

// Wire codes for domain errors.
const (
	ErrCodeUnauthenticated        = "unauthenticated"
	ErrCodeRoomNotLive            = "room_not_live"
	ErrCodeInvalidCredential      = "invalid_credential"
	ErrCodeCapacityExceeded       = "capacity_exceeded"
	ErrCodeAlreadyActiveElsewhere = "already_active_elsewhere"
	ErrCodeMalformedMessage       = "malformed_message"
	ErrCodeTargetNotInRoom        = "target_not_in_room"
	ErrCodeStorageUnavailable     = "storage_unavailable"
)

var (
	// ErrUnauthenticated rejects connections without a validated identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRoomNotLive rejects connections to absent or non-live rooms.
	ErrRoomNotLive = errors.New("room not live")
	// ErrInvalidCredential rejects private-room connections with a bad
	// or missing credential.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrCapacityExceeded rejects admissions beyond the room's limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrAlreadyActiveElsewhere rejects identities holding an active
	// membership in a different room.
	ErrAlreadyActiveElsewhere = errors.New("already active in another room")
	// ErrMalformedMessage flags an inbound payload that cannot be parsed
	// or carries an unknown type.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrTargetNotInRoom flags a relay whose target holds no active
	// membership in the room.
	ErrTargetNotInRoom = errors.New("target not in room")
	// ErrStorageUnavailable wraps durable-store collaborator failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// CoreError wraps a wire code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// ErrorCode maps a domain error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	case errors.Is(err, ErrRoomNotLive):
		return ErrCodeRoomNotLive
	case errors.Is(err, ErrInvalidCredential):
		return ErrCodeInvalidCredential
	case errors.Is(err, ErrCapacityExceeded):
		return ErrCodeCapacityExceeded
	case errors.Is(err, ErrAlreadyActiveElsewhere):
		return ErrCodeAlreadyActiveElsewhere
	case errors.Is(err, ErrMalformedMessage):
		return ErrCodeMalformedMessage
	case errors.Is(err, ErrTargetNotInRoom):
		return ErrCodeTargetNotInRoom
	default:
		return ErrCodeStorageUnavailable
	}
}
