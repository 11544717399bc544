package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid             TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	host_id          INTEGER,
	max_participants INTEGER NOT NULL DEFAULT 6,
	is_private       BOOLEAN NOT NULL DEFAULT 0,
	password_hash    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'live',
	is_deleted       BOOLEAN NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at       DATETIME,
	ended_at         DATETIME
);

CREATE TABLE IF NOT EXISTS room_participants (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id       INTEGER NOT NULL REFERENCES rooms(id),
	user_id       INTEGER NOT NULL,
	username      TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'participant',
	joined_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	left_at       DATETIME,
	is_muted      BOOLEAN NOT NULL DEFAULT 0,
	hand_raised   BOOLEAN NOT NULL DEFAULT 0,
	video_enabled BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE(room_id, user_id)
);

-- One active membership per user across all rooms.
CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active_user
	ON room_participants(user_id) WHERE left_at IS NULL;

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id             INTEGER PRIMARY KEY,
	xp                  INTEGER NOT NULL DEFAULT 0,
	level               INTEGER NOT NULL DEFAULT 1,
	total_speak_minutes INTEGER NOT NULL DEFAULT 0,
	total_rooms_joined  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_activity (
	user_id          INTEGER NOT NULL,
	day              TEXT NOT NULL,
	practice_minutes INTEGER NOT NULL DEFAULT 0,
	xp_earned        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, day)
);

CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL REFERENCES rooms(id),
	user_id INTEGER NOT NULL,
	body    TEXT NOT NULL,
	sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateRoom inserts a room, assigning a public uuid when the caller
// did not bring one.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) error {
	if room.UUID == "" {
		room.UUID = uuid.NewString()
	}
	query := `
		INSERT INTO rooms (uuid, title, host_id, max_participants, is_private, password_hash, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		room.UUID,
		room.Title,
		room.HostID,
		room.MaxParticipants,
		room.IsPrivate,
		room.PasswordHash,
		room.Status,
		room.StartedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("insert room: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	room.ID = id

	return nil
}

// FindLiveRoom retrieves a room that is live and not deleted.
func (s *SQLiteStore) FindLiveRoom(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, uuid, title, host_id, max_participants, is_private, password_hash,
		       status, is_deleted, created_at, started_at, ended_at
		FROM rooms
		WHERE id = ? AND status = 'live' AND is_deleted = 0
	`
	var room store.Room
	var hostID sql.NullInt64
	var startedAt, endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.UUID,
		&room.Title,
		&hostID,
		&room.MaxParticipants,
		&room.IsPrivate,
		&room.PasswordHash,
		&room.Status,
		&room.IsDeleted,
		&room.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if hostID.Valid {
		room.HostID = &hostID.Int64
	}
	if startedAt.Valid {
		room.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		room.EndedAt = &endedAt.Time
	}

	return &room, nil
}

// CountActiveParticipants counts memberships with no leave timestamp.
func (s *SQLiteStore) CountActiveParticipants(ctx context.Context, roomID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM room_participants
		WHERE room_id = ? AND left_at IS NULL
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active participants: %w", err)
	}
	return count, nil
}

// FindActiveParticipantByUser returns the user's active membership across
// all rooms.
func (s *SQLiteStore) FindActiveParticipantByUser(ctx context.Context, userID int64) (*store.Participant, error) {
	query := `
		SELECT id, room_id, user_id, username, role, joined_at, left_at,
		       is_muted, hand_raised, video_enabled
		FROM room_participants
		WHERE user_id = ? AND left_at IS NULL
	`
	return s.scanParticipant(s.db.QueryRowContext(ctx, query, userID))
}

// UpsertParticipant creates an active membership, reviving a previously
// left record instead of duplicating it.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, roomID, userID int64, username string, role store.Role) (*store.Participant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `
		INSERT INTO room_participants (room_id, user_id, username, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			username      = excluded.username,
			role          = excluded.role,
			joined_at     = CASE WHEN left_at IS NULL THEN joined_at ELSE excluded.joined_at END,
			left_at       = NULL,
			is_muted      = 0,
			hand_raised   = 0,
			video_enabled = 0
	`
	if _, err := tx.ExecContext(ctx, query, roomID, userID, username, role, now); err != nil {
		if strings.Contains(err.Error(), "idx_participants_active_user") {
			return nil, fmt.Errorf("upsert participant: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("upsert participant: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, room_id, user_id, username, role, joined_at, left_at,
		       is_muted, hand_raised, video_enabled
		FROM room_participants
		WHERE room_id = ? AND user_id = ?
	`, roomID, userID)
	p, err := s.scanParticipant(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return p, nil
}

// MarkParticipantLeft sets the leave timestamp on the active record.
func (s *SQLiteStore) MarkParticipantLeft(ctx context.Context, roomID, userID int64, at time.Time) error {
	query := `
		UPDATE room_participants
		SET left_at = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), roomID, userID)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("active participant %d in room %d: %w", userID, roomID, store.ErrNotFound)
	}
	return nil
}

// UpdateParticipantFlags persists the mutable session flags of the
// active record.
func (s *SQLiteStore) UpdateParticipantFlags(ctx context.Context, roomID, userID int64, muted, handRaised, videoEnabled bool) error {
	query := `
		UPDATE room_participants
		SET is_muted = ?, hand_raised = ?, video_enabled = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, muted, handRaised, videoEnabled, roomID, userID)
	if err != nil {
		return fmt.Errorf("update participant flags: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("active participant %d in room %d: %w", userID, roomID, store.ErrNotFound)
	}
	return nil
}

// ReassignHost updates the room's host reference and promotes the new
// host's participant record, in one transaction.
func (s *SQLiteStore) ReassignHost(ctx context.Context, roomID, newHostID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE rooms SET host_id = ? WHERE id = ?`, newHostID, roomID); err != nil {
		return fmt.Errorf("update room host: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE room_participants
		SET role = 'host'
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`, roomID, newHostID); err != nil {
		return fmt.Errorf("promote participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CloseRoom transitions the room to ended and stamps the closure.
func (s *SQLiteStore) CloseRoom(ctx context.Context, roomID int64, at time.Time) error {
	query := `
		UPDATE rooms
		SET status = 'ended', ended_at = ?
		WHERE id = ? AND status = 'live'
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("live room %d: %w", roomID, store.ErrNotFound)
	}
	return nil
}

// ==== LedgerStore implementation ====

// AccrueActivity applies speak time, XP, level and the daily activity
// upsert atomically.
func (s *SQLiteStore) AccrueActivity(ctx context.Context, a store.Accrual) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id) VALUES (?)
		ON CONFLICT(user_id) DO NOTHING
	`, a.UserID); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_profiles
		SET total_speak_minutes = total_speak_minutes + ?,
		    xp                  = xp + ?,
		    level               = (xp + ?) / ? + 1,
		    total_rooms_joined  = total_rooms_joined + 1
		WHERE user_id = ?
	`, a.Minutes, a.XP, a.XP, a.LevelStep, a.UserID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, day, practice_minutes, xp_earned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			practice_minutes = practice_minutes + excluded.practice_minutes,
			xp_earned        = xp_earned + excluded.xp_earned
	`, a.UserID, a.Day, a.Minutes, a.XP); err != nil {
		return fmt.Errorf("upsert daily activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetProfile retrieves a user's accumulated statistics.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID int64) (*store.Profile, error) {
	query := `
		SELECT user_id, xp, level, total_speak_minutes, total_rooms_joined
		FROM user_profiles
		WHERE user_id = ?
	`
	var p store.Profile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.XP,
		&p.Level,
		&p.TotalSpeakMinutes,
		&p.TotalRoomsJoined,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %d: %w", userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// GetActivity retrieves one daily activity row.
func (s *SQLiteStore) GetActivity(ctx context.Context, userID int64, day string) (*store.Activity, error) {
	query := `
		SELECT user_id, day, practice_minutes, xp_earned
		FROM user_activity
		WHERE user_id = ? AND day = ?
	`
	var a store.Activity
	err := s.db.QueryRowContext(ctx, query, userID, day).Scan(
		&a.UserID,
		&a.Day,
		&a.PracticeMinutes,
		&a.XPEarned,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activity %d/%s: %w", userID, day, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query activity: %w", err)
	}
	return &a, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a chat message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (room_id, user_id, body, sent_at)
		VALUES (?, ?, ?, ?)
	`
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.UserID, msg.Body, msg.SentAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanParticipant(row rowScanner) (*store.Participant, error) {
	var p store.Participant
	var leftAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.RoomID,
		&p.UserID,
		&p.Username,
		&p.Role,
		&p.JoinedAt,
		&leftAt,
		&p.IsMuted,
		&p.HandRaised,
		&p.VideoEnabled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query participant: %w", err)
	}
	if leftAt.Valid {
		p.LeftAt = &leftAt.Time
	}
	return &p, nil
}
