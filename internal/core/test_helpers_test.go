package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

func mustNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: kind=%v", ev.Kind)
	default:
	}
}

// fakeStore is an in-memory store.Store with the same visible semantics
// as the sqlite implementation, including the single-active-membership
// constraint.
type fakeStore struct {
	mu           sync.Mutex
	rooms        map[int64]*store.Room
	participants []*store.Participant
	profiles     map[int64]*store.Profile
	activity     map[string]*store.Activity
	messages     []*store.Message
	nextID       int64

	// accrueFailures makes the next N AccrueActivity calls fail.
	accrueFailures int
	accrueCalls    int
	reassignCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[int64]*store.Room),
		profiles: make(map[int64]*store.Profile),
		activity: make(map[string]*store.Activity),
	}
}

func (f *fakeStore) CreateRoom(ctx context.Context, room *store.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if room.ID == 0 {
		room.ID = f.nextID
	}
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeStore) FindLiveRoom(ctx context.Context, id int64) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.IsDeleted || room.Status != store.RoomStatusLive {
		return nil, store.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (f *fakeStore) CountActiveParticipants(ctx context.Context, roomID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.participants {
		if p.RoomID == roomID && p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindActiveParticipantByUser(ctx context.Context, userID int64) (*store.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.UserID == userID && p.LeftAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertParticipant(ctx context.Context, roomID, userID int64, username string, role store.Role) (*store.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.participants {
		if p.UserID == userID && p.LeftAt == nil && p.RoomID != roomID {
			return nil, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			if p.LeftAt != nil {
				p.JoinedAt = now
				p.LeftAt = nil
				p.IsMuted = false
				p.HandRaised = false
				p.VideoEnabled = false
			}
			p.Username = username
			p.Role = role
			cp := *p
			return &cp, nil
		}
	}

	f.nextID++
	p := &store.Participant{
		ID:       f.nextID,
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		Role:     role,
		JoinedAt: now,
	}
	f.participants = append(f.participants, p)
	cp := *p
	return &cp, nil
}

func (f *fakeStore) MarkParticipantLeft(ctx context.Context, roomID, userID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateParticipantFlags(ctx context.Context, roomID, userID int64, muted, handRaised, videoEnabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID && p.LeftAt == nil {
			p.IsMuted = muted
			p.HandRaised = handRaised
			p.VideoEnabled = videoEnabled
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ReassignHost(ctx context.Context, roomID, newHostID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reassignCalls++
	room, ok := f.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.HostID = &newHostID
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == newHostID && p.LeftAt == nil {
			p.Role = store.RoleHost
		}
	}
	return nil
}

func (f *fakeStore) CloseRoom(ctx context.Context, roomID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.Status = store.RoomStatusEnded
	t := at
	room.EndedAt = &t
	return nil
}

func (f *fakeStore) AccrueActivity(ctx context.Context, a store.Accrual) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accrueCalls++
	if f.accrueFailures > 0 {
		f.accrueFailures--
		return fmt.Errorf("disk full")
	}

	profile, ok := f.profiles[a.UserID]
	if !ok {
		profile = &store.Profile{UserID: a.UserID, Level: 1}
		f.profiles[a.UserID] = profile
	}
	profile.TotalSpeakMinutes += a.Minutes
	profile.XP += a.XP
	profile.Level = profile.XP/a.LevelStep + 1
	profile.TotalRoomsJoined++

	key := fmt.Sprintf("%d|%s", a.UserID, a.Day)
	act, ok := f.activity[key]
	if !ok {
		act = &store.Activity{UserID: a.UserID, Day: a.Day}
		f.activity[key] = act
	}
	act.PracticeMinutes += a.Minutes
	act.XPEarned += a.XP
	return nil
}

func (f *fakeStore) GetProfile(ctx context.Context, userID int64) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

func (f *fakeStore) GetActivity(ctx context.Context, userID int64, day string) (*store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	act, ok := f.activity[fmt.Sprintf("%d|%s", userID, day)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *act
	return &cp, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	cp := *msg
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) participantRecords(roomID, userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			n++
		}
	}
	return n
}

// seedLiveRoom registers a live room in the fake store and returns it.
func seedLiveRoom(f *fakeStore, id int64, hostID int64, maxParticipants int) *store.Room {
	room := &store.Room{
		ID:              id,
		UUID:            fmt.Sprintf("room-%d", id),
		Title:           "practice",
		HostID:          &hostID,
		MaxParticipants: maxParticipants,
		Status:          store.RoomStatusLive,
		CreatedAt:       time.Now().UTC(),
	}
	_ = f.CreateRoom(context.Background(), room)
	return room
}
