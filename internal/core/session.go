package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

// SessionState is the lifecycle of an in-memory room session.
type SessionState int

const (
	// SessionLive accepts admissions and relays.
	SessionLive SessionState = iota
	// SessionEnded is terminal; the room closed.
	SessionEnded
)

// Flag identifies one of the mutable per-member session flags.
type Flag int

const (
	FlagMuted Flag = iota
	FlagHandRaised
	FlagVideoEnabled
)

// Member is the in-memory working copy of an active membership.
type Member struct {
	Identity
	Role         store.Role
	JoinedAt     time.Time
	IsMuted      bool
	HandRaised   bool
	VideoEnabled bool
}

// Info returns the externally visible state of the member.
func (m *Member) Info() MemberInfo {
	return MemberInfo{
		UserID:       m.UserID,
		Username:     m.Username,
		Role:         m.Role,
		JoinedAt:     m.JoinedAt,
		IsMuted:      m.IsMuted,
		HandRaised:   m.HandRaised,
		VideoEnabled: m.VideoEnabled,
	}
}

// Broadcaster fans an event out to the transports of the listed
// members. The registry implements it.
type Broadcaster interface {
	Broadcast(members []int64, ev Event, exclude int64) int
}

// Session holds the live state of one room: members, roles and media
// flags, plus the transition logic for join, leave, host handoff and
// closure. It is the authoritative source for real-time decisions;
// writes are flushed to the durable store at transition boundaries.
// All transitions on the same room serialize on the session mutex, and
// membership events are published to the sink before the mutex is
// released, so every observer sees them in transition order.
type Session struct {
	mu      sync.Mutex
	room    *store.Room
	state   SessionState
	members map[int64]*Member
	st      store.Store
	sink    Broadcaster
	log     *zerolog.Logger
	now     func() time.Time
}

// NewSession constructs a live session around a room's durable record.
func NewSession(room *store.Room, st store.Store, sink Broadcaster, logger *zerolog.Logger) *Session {
	return &Session{
		room:    room,
		state:   SessionLive,
		members: make(map[int64]*Member),
		st:      st,
		sink:    sink,
		log:     logger,
		now:     time.Now,
	}
}

// RoomID returns the room's durable identifier.
func (s *Session) RoomID() int64 {
	return s.room.ID
}

// RoomUUID returns the room's public identifier.
func (s *Session) RoomUUID() string {
	return s.room.UUID
}

// Private reports whether admission requires a credential.
func (s *Session) Private() bool {
	return s.room.IsPrivate
}

// CredentialHash returns the room's one-way hashed credential.
func (s *Session) CredentialHash() string {
	return s.room.PasswordHash
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AdmitResult reports the outcome of an admission.
type AdmitResult struct {
	Member MemberInfo
	// Attached is true when the identity was already an active member of
	// this room and the admission only attached another transport.
	Attached bool
}

// Admit adds an identity as an active member. It fails with
// ErrCapacityExceeded when the room is full, ErrAlreadyActiveElsewhere
// when the identity is live in a different room, and
// ErrStorageUnavailable when the membership cannot be persisted. A
// previously left record for this room is revived with default flags.
// The room's host reference forces the host role.
func (s *Session) Admit(ctx context.Context, id Identity) (AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionLive {
		return AdmitResult{}, ErrRoomNotLive
	}

	if existing, ok := s.members[id.UserID]; ok {
		return AdmitResult{Member: existing.Info(), Attached: true}, nil
	}

	if len(s.members) >= s.room.MaxParticipants {
		return AdmitResult{}, ErrCapacityExceeded
	}

	active, err := s.st.FindActiveParticipantByUser(ctx, id.UserID)
	switch {
	case err == nil:
		if active.RoomID != s.room.ID {
			return AdmitResult{}, ErrAlreadyActiveElsewhere
		}
		// Stale active record for this room (e.g. process restart);
		// the upsert below revives it in place.
	case errors.Is(err, store.ErrNotFound):
		// No active membership anywhere.
	default:
		return AdmitResult{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	role := store.RoleParticipant
	if s.room.HostID != nil && *s.room.HostID == id.UserID {
		role = store.RoleHost
	}

	rec, err := s.st.UpsertParticipant(ctx, s.room.ID, id.UserID, id.Username, role)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AdmitResult{}, ErrAlreadyActiveElsewhere
		}
		return AdmitResult{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	member := &Member{
		Identity: id,
		Role:     rec.Role,
		JoinedAt: rec.JoinedAt,
	}
	s.members[id.UserID] = member

	info := member.Info()
	s.broadcastLocked(Event{
		Kind:   EventMemberJoined,
		RoomID: s.room.ID,
		Member: &info,
	}, id.UserID)

	s.log.Info().Int64("room_id", s.room.ID).Int64("user_id", id.UserID).
		Str("role", string(member.Role)).Msg("member admitted")

	return AdmitResult{Member: info}, nil
}

// DismissResult reports the outcome of a dismissal.
type DismissResult struct {
	// Dismissed is false when the identity held no active membership;
	// a duplicate dismissal is a no-op.
	Dismissed bool
	Duration  time.Duration
	WasHost   bool
	NewHost   *MemberInfo
	Ended     bool
	EndedAt   time.Time
}

// Dismiss removes an identity's active membership and returns the
// session duration for accrual. If the host departs, an arbitrary
// remaining member (earliest join, then lowest id) becomes host; with
// no members left the room transitions to ended. The in-memory removal
// always proceeds; store failures are logged, never raised, so a dead
// connection can never leave a ghost active member behind.
func (s *Session) Dismiss(ctx context.Context, userID int64) DismissResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.members[userID]
	if !ok {
		return DismissResult{}
	}
	delete(s.members, userID)

	now := s.now()
	res := DismissResult{
		Dismissed: true,
		Duration:  now.Sub(member.JoinedAt),
		WasHost:   member.Role == store.RoleHost,
	}

	if err := s.st.MarkParticipantLeft(ctx, s.room.ID, userID, now); err != nil {
		s.log.Error().Err(err).Int64("room_id", s.room.ID).Int64("user_id", userID).
			Msg("failed to persist leave")
	}

	s.broadcastLocked(Event{
		Kind:   EventMemberLeft,
		RoomID: s.room.ID,
		From:   member.Identity,
	}, 0)

	if len(s.members) == 0 {
		s.state = SessionEnded
		s.room.Status = store.RoomStatusEnded
		s.room.EndedAt = &now
		res.Ended = true
		res.EndedAt = now
		if err := s.st.CloseRoom(ctx, s.room.ID, now); err != nil {
			s.log.Error().Err(err).Int64("room_id", s.room.ID).Msg("failed to close room")
		}
		s.broadcastLocked(Event{Kind: EventRoomEnded, RoomID: s.room.ID}, 0)
		s.log.Info().Int64("room_id", s.room.ID).Msg("room ended, no members remain")
		return res
	}

	if res.WasHost {
		successor := s.pickSuccessorLocked()
		successor.Role = store.RoleHost
		s.room.HostID = &successor.UserID
		info := successor.Info()
		res.NewHost = &info
		if err := s.st.ReassignHost(ctx, s.room.ID, successor.UserID); err != nil {
			s.log.Error().Err(err).Int64("room_id", s.room.ID).Int64("new_host", successor.UserID).
				Msg("failed to persist host reassignment")
		}
		s.broadcastLocked(Event{
			Kind:   EventHostChanged,
			RoomID: s.room.ID,
			Member: &info,
		}, 0)
		s.log.Info().Int64("room_id", s.room.ID).Int64("new_host", successor.UserID).
			Msg("host migrated")
	}

	return res
}

// broadcastLocked publishes an event to the current member set while the
// caller still holds the session mutex. The sink's sends are
// non-blocking, so publishing inside the critical section cannot stall a
// transition.
func (s *Session) broadcastLocked(ev Event, exclude int64) {
	if s.sink == nil {
		return
	}
	ids := make([]int64, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	s.sink.Broadcast(ids, ev, exclude)
}

// pickSuccessorLocked selects the next host: earliest current join
// timestamp, ties broken by lowest user id.
func (s *Session) pickSuccessorLocked() *Member {
	var successor *Member
	for _, m := range s.members {
		if successor == nil {
			successor = m
			continue
		}
		if m.JoinedAt.Before(successor.JoinedAt) ||
			(m.JoinedAt.Equal(successor.JoinedAt) && m.UserID < successor.UserID) {
			successor = m
		}
	}
	return successor
}

// SetFlag mutates one session flag for an active member and flushes the
// flag set to the store. A missing member is a race-tolerant no-op.
func (s *Session) SetFlag(ctx context.Context, userID int64, flag Flag, value bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.members[userID]
	if !ok {
		return false
	}

	switch flag {
	case FlagMuted:
		member.IsMuted = value
	case FlagHandRaised:
		member.HandRaised = value
	case FlagVideoEnabled:
		member.VideoEnabled = value
	}

	if err := s.st.UpdateParticipantFlags(ctx, s.room.ID, userID,
		member.IsMuted, member.HandRaised, member.VideoEnabled); err != nil {
		s.log.Warn().Err(err).Int64("room_id", s.room.ID).Int64("user_id", userID).
			Msg("failed to persist flag update")
	}
	return true
}

// IsActive reports whether the identity holds an active membership.
func (s *Session) IsActive(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[userID]
	return ok
}

// MemberIDs returns the identities of all active members.
func (s *Session) MemberIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the current active member list in join order, used
// to send initial room state to a newly admitted participant.
func (s *Session) Snapshot() []MemberInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]MemberInfo, 0, len(s.members))
	for _, m := range s.members {
		infos = append(infos, m.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].JoinedAt.Equal(infos[j].JoinedAt) {
			return infos[i].UserID < infos[j].UserID
		}
		return infos[i].JoinedAt.Before(infos[j].JoinedAt)
	})
	return infos
}
