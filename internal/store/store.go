package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// RoomStatus tracks the lifecycle of a room.
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusLive      RoomStatus = "live"
	RoomStatusEnded     RoomStatus = "ended"
)

// Role is the privilege level of a room participant.
type Role string

const (
	RoleHost        Role = "host"
	RoleCoHost      Role = "cohost"
	RoleParticipant Role = "participant"
)

// Room is a bounded live session container.
type Room struct {
	ID              int64
	UUID            string
	Title           string
	HostID          *int64
	MaxParticipants int
	IsPrivate       bool
	PasswordHash    string
	Status          RoomStatus
	IsDeleted       bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// Participant is a room membership record. A nil LeftAt means the
// membership is active.
type Participant struct {
	ID           int64
	RoomID       int64
	UserID       int64
	Username     string
	Role         Role
	JoinedAt     time.Time
	LeftAt       *time.Time
	IsMuted      bool
	HandRaised   bool
	VideoEnabled bool
}

// Profile holds per-user accumulated practice statistics.
type Profile struct {
	UserID            int64
	XP                int
	Level             int
	TotalSpeakMinutes int
	TotalRoomsJoined  int
}

// Activity is the per-user per-day accrual row. Day is a YYYY-MM-DD date.
type Activity struct {
	UserID          int64
	Day             string
	PracticeMinutes int
	XPEarned        int
}

// Accrual describes one completed session's worth of statistics.
// LevelStep is the cumulative XP required per level; the level is
// recomputed as xp/LevelStep+1 inside the same transaction.
type Accrual struct {
	UserID    int64
	Day       string
	Minutes   int
	XP        int
	LevelStep int
}

// Message is a persisted room chat message.
type Message struct {
	ID     int64
	RoomID int64
	UserID int64
	Body   string
	SentAt time.Time
}

// RoomStore handles room and participant persistence.
type RoomStore interface {
	// CreateRoom inserts a room. Used by tooling and tests; the live
	// service never creates rooms itself.
	CreateRoom(ctx context.Context, room *Room) error

	// FindLiveRoom retrieves a room that is live and not deleted.
	FindLiveRoom(ctx context.Context, id int64) (*Room, error)

	// CountActiveParticipants counts memberships with no leave timestamp.
	CountActiveParticipants(ctx context.Context, roomID int64) (int, error)

	// FindActiveParticipantByUser returns the user's active membership
	// across all rooms, or ErrNotFound.
	FindActiveParticipantByUser(ctx context.Context, userID int64) (*Participant, error)

	// UpsertParticipant creates an active membership, reviving a
	// previously left record for the same (user, room) pair instead of
	// duplicating it. Reviving resets the session flags and join time.
	UpsertParticipant(ctx context.Context, roomID, userID int64, username string, role Role) (*Participant, error)

	// MarkParticipantLeft sets the leave timestamp on the active record.
	MarkParticipantLeft(ctx context.Context, roomID, userID int64, at time.Time) error

	// UpdateParticipantFlags persists the mutable session flags of the
	// active record.
	UpdateParticipantFlags(ctx context.Context, roomID, userID int64, muted, handRaised, videoEnabled bool) error

	// ReassignHost updates both the room's host reference and the new
	// host's participant role.
	ReassignHost(ctx context.Context, roomID, newHostID int64) error

	// CloseRoom transitions the room to ended and stamps the closure.
	CloseRoom(ctx context.Context, roomID int64, at time.Time) error
}

// LedgerStore handles usage-statistics persistence.
type LedgerStore interface {
	// AccrueActivity applies speak time, XP, level and the daily activity
	// upsert atomically in a single transaction.
	AccrueActivity(ctx context.Context, a Accrual) error

	// GetProfile retrieves a user's accumulated statistics.
	GetProfile(ctx context.Context, userID int64) (*Profile, error)

	// GetActivity retrieves one daily activity row.
	GetActivity(ctx context.Context, userID int64, day string) (*Activity, error)
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID.
	SaveMessage(ctx context.Context, msg *Message) error
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	LedgerStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
