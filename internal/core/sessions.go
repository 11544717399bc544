package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

// SessionTable is the arena of room id to live session, owned by one
// coordinator instance. Sessions are created lazily from the durable
// store on first connection and removed when the room ends.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	st       store.Store
	sink     Broadcaster
	log      *zerolog.Logger
}

// NewSessionTable constructs an empty session table. New sessions
// publish their membership events through the given sink.
func NewSessionTable(st store.Store, sink Broadcaster, logger *zerolog.Logger) *SessionTable {
	return &SessionTable{
		sessions: make(map[int64]*Session),
		st:       st,
		sink:     sink,
		log:      logger,
	}
}

// GetOrCreate returns the live session for the room, loading the room
// record when no session exists. A missing or non-live room yields
// ErrRoomNotLive.
func (t *SessionTable) GetOrCreate(ctx context.Context, roomID int64) (*Session, error) {
	t.mu.Lock()
	if sess, ok := t.sessions[roomID]; ok {
		t.mu.Unlock()
		return sess, nil
	}
	t.mu.Unlock()

	// Room lookup happens outside the table lock; a slow store must not
	// block sessions of other rooms.
	room, err := t.st.FindLiveRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotLive
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sess, ok := t.sessions[roomID]; ok {
		return sess, nil
	}
	sess := NewSession(room, t.st, t.sink, t.log)
	t.sessions[roomID] = sess
	t.log.Info().Int64("room_id", roomID).Str("title", room.Title).Msg("room session created")
	return sess, nil
}

// Remove drops an ended session from the table.
func (t *SessionTable) Remove(roomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, roomID)
}

// Len returns the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
