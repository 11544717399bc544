package core

import (
	"context"
	"errors"
	"testing"

	"github.com/Aswin1819/talkmate-server/internal/auth"
	"github.com/Aswin1819/talkmate-server/internal/store"
)

func newTestController(st *fakeStore) (*Controller, *SessionTable) {
	logger := testLogger()
	registry := NewRegistry(logger)
	sessions := NewSessionTable(st, registry, logger)
	relay := NewRelay(registry, logger)
	ledger := NewLedger(st, logger)
	return NewController(sessions, registry, relay, ledger, st, logger), sessions
}

func TestControllerConnectSequence(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	if _, err := ctl.Connect(ctx, host.Identity, 1, "", host); err != nil {
		t.Fatalf("host connect: %v", err)
	}
	state := mustEvent(t, host.Events, EventRoomState)
	if len(state.Members) != 1 || state.RoomUUID == "" {
		t.Fatalf("unexpected initial room state: %+v", state)
	}

	guest := NewClient("g", Identity{UserID: 20, Username: "guest"}, 8)
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}

	joined := mustEvent(t, host.Events, EventMemberJoined)
	if joined.Member == nil || joined.Member.UserID != 20 {
		t.Fatalf("unexpected join notification: %+v", joined)
	}
	connect := mustEvent(t, host.Events, EventAudioConnectRequest)
	if connect.Member == nil || connect.Member.UserID != 20 {
		t.Fatalf("unexpected media connect request: %+v", connect)
	}

	guestState := mustEvent(t, guest.Events, EventRoomState)
	if len(guestState.Members) != 2 {
		t.Fatalf("guest snapshot must include both members, got %d", len(guestState.Members))
	}
	// The newcomer is announced to others, never to itself.
	mustNoEvent(t, guest.Events)
}

func TestControllerConnectRejections(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 1)
	ctl, _ := newTestController(st)

	client := NewClient("a", Identity{}, 8)
	if _, err := ctl.Connect(ctx, Identity{}, 1, "", client); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	client = NewClient("b", Identity{UserID: 10}, 8)
	if _, err := ctl.Connect(ctx, client.Identity, 99, "", client); !errors.Is(err, ErrRoomNotLive) {
		t.Fatalf("expected ErrRoomNotLive, got %v", err)
	}

	if _, err := ctl.Connect(ctx, client.Identity, 1, "", client); err != nil {
		t.Fatalf("connect: %v", err)
	}
	full := NewClient("c", Identity{UserID: 20}, 8)
	if _, err := ctl.Connect(ctx, full.Identity, 1, "", full); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestControllerPrivateRoomCredential(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	room := seedLiveRoom(st, 1, 10, 5)
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	room.IsPrivate = true
	room.PasswordHash = hash

	ctl, _ := newTestController(st)
	client := NewClient("a", Identity{UserID: 10, Username: "host"}, 8)

	if _, err := ctl.Connect(ctx, client.Identity, 1, "", client); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("missing credential: expected ErrInvalidCredential, got %v", err)
	}
	if _, err := ctl.Connect(ctx, client.Identity, 1, "wrong", client); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong credential: expected ErrInvalidCredential, got %v", err)
	}
	if _, err := ctl.Connect(ctx, client.Identity, 1, "secret", client); err != nil {
		t.Fatalf("correct credential rejected: %v", err)
	}
}

func TestControllerDisconnectSequence(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, sessions := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	guest := NewClient("g", Identity{UserID: 20, Username: "guest"}, 8)
	sess, err := ctl.Connect(ctx, host.Identity, 1, "", host)
	if err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}

	// Host leaves: the guest sees the departure, then the host handoff.
	ctl.Disconnect(ctx, sess, host)

	left := mustEvent(t, guest.Events, EventMemberLeft)
	if left.From.UserID != 10 {
		t.Fatalf("unexpected departure notice: %+v", left)
	}
	handoff := mustEvent(t, guest.Events, EventHostChanged)
	if handoff.Member == nil || handoff.Member.UserID != 20 {
		t.Fatalf("unexpected host handoff: %+v", handoff)
	}
	if st.accrueCalls != 1 {
		t.Fatalf("expected one accrual for the departed host, got %d", st.accrueCalls)
	}

	// Last member out ends the room and drops the session.
	ctl.Disconnect(ctx, sess, guest)
	if sessions.Len() != 0 {
		t.Fatalf("ended session must leave the table, %d remain", sessions.Len())
	}
	if st.rooms[1].Status != store.RoomStatusEnded {
		t.Fatalf("room closure not persisted: %+v", st.rooms[1])
	}
	if st.accrueCalls != 2 {
		t.Fatalf("expected accrual for both members, got %d", st.accrueCalls)
	}
}

func TestControllerDisconnectIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10}, 8)
	guest := NewClient("g", Identity{UserID: 20}, 8)
	sess, err := ctl.Connect(ctx, host.Identity, 1, "", host)
	if err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}

	ctl.Disconnect(ctx, sess, guest)
	ctl.Disconnect(ctx, sess, guest)

	mustEvent(t, host.Events, EventMemberLeft)
	mustNoEvent(t, host.Events)
	if st.accrueCalls != 1 {
		t.Fatalf("duplicate disconnect must not accrue twice, got %d", st.accrueCalls)
	}
}

func TestControllerMultiTransportLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	if _, err := ctl.Connect(ctx, host.Identity, 1, "", host); err != nil {
		t.Fatalf("host connect: %v", err)
	}
	mustEvent(t, host.Events, EventRoomState)

	id := Identity{UserID: 20, Username: "guest"}
	tabA := NewClient("ga", id, 8)
	tabB := NewClient("gb", id, 8)

	sess, err := ctl.Connect(ctx, id, 1, "", tabA)
	if err != nil {
		t.Fatalf("first tab connect: %v", err)
	}
	mustEvent(t, host.Events, EventMemberJoined)
	mustEvent(t, host.Events, EventAudioConnectRequest)

	// Second tab attaches to the existing membership: both tabs get the
	// snapshot but nobody is announced again.
	if _, err := ctl.Connect(ctx, id, 1, "", tabB); err != nil {
		t.Fatalf("second tab connect: %v", err)
	}
	mustEvent(t, tabB.Events, EventRoomState)
	mustNoEvent(t, host.Events)

	// First tab closes while the second stays: the membership survives.
	ctl.Disconnect(ctx, sess, tabA)
	mustNoEvent(t, host.Events)
	if !sess.IsActive(20) {
		t.Fatal("membership must survive while a transport remains")
	}
	if st.accrueCalls != 0 {
		t.Fatalf("no accrual while a transport remains, got %d", st.accrueCalls)
	}

	// Last tab out runs the leave sequence.
	ctl.Disconnect(ctx, sess, tabB)
	mustEvent(t, host.Events, EventMemberLeft)
	if sess.IsActive(20) {
		t.Fatal("membership must end with the last transport")
	}
	if st.accrueCalls != 1 {
		t.Fatalf("expected one accrual, got %d", st.accrueCalls)
	}
}

func TestControllerChatBroadcast(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	guest := NewClient("g", Identity{UserID: 20, Username: "guest"}, 8)
	sess, err := ctl.Connect(ctx, host.Identity, 1, "", host)
	if err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}

	ctl.HandleChat(ctx, sess, guest.Identity, "hello room")

	// Chat fans out to everyone, sender included.
	for _, c := range []*Client{host, guest} {
		ev := mustEvent(t, c.Events, EventChatMessage)
		if ev.Chat == nil || ev.Chat.Text != "hello room" || ev.From.UserID != 20 {
			t.Fatalf("unexpected chat event: %+v", ev)
		}
		if ev.Chat.ID == 0 {
			t.Fatal("chat event must carry the persisted message id")
		}
	}
	if len(st.messages) != 1 {
		t.Fatalf("expected one persisted message, got %d", len(st.messages))
	}

	// Empty text is dropped.
	ctl.HandleChat(ctx, sess, guest.Identity, "")
	mustNoEvent(t, host.Events)
}

func TestControllerToggleBroadcast(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	guest := NewClient("g", Identity{UserID: 20, Username: "guest"}, 8)
	sess, err := ctl.Connect(ctx, host.Identity, 1, "", host)
	if err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}

	ctl.HandleToggle(ctx, sess, guest.Identity, FlagMuted, true)
	ev := mustEvent(t, host.Events, EventMuteToggle)
	if ev.From.UserID != 20 || !ev.Flag {
		t.Fatalf("unexpected mute event: %+v", ev)
	}

	ctl.HandleToggle(ctx, sess, guest.Identity, FlagHandRaised, true)
	mustEvent(t, host.Events, EventHandRaised)

	// Toggles from a non-member are silent no-ops.
	ctl.HandleToggle(ctx, sess, Identity{UserID: 99}, FlagMuted, true)
	mustNoEvent(t, host.Events)
}

func TestControllerSignalRouting(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	seedLiveRoom(st, 1, 10, 5)
	ctl, _ := newTestController(st)

	host := NewClient("h", Identity{UserID: 10, Username: "host"}, 8)
	guest := NewClient("g", Identity{UserID: 20, Username: "guest"}, 8)
	sess, err := ctl.Connect(ctx, host.Identity, 1, "", host)
	if err != nil {
		t.Fatalf("host connect: %v", err)
	}
	if _, err := ctl.Connect(ctx, guest.Identity, 1, "", guest); err != nil {
		t.Fatalf("guest connect: %v", err)
	}
	mustEvent(t, host.Events, EventMemberJoined)
	mustEvent(t, host.Events, EventAudioConnectRequest)

	if err := ctl.HandleSignal(sess, guest.Identity, EventSignalOffer, 10, []byte(`{"type":"offer"}`)); err != nil {
		t.Fatalf("signal: %v", err)
	}
	ev := mustEvent(t, host.Events, EventSignalOffer)
	if ev.From.UserID != 20 || ev.Target != 10 {
		t.Fatalf("unexpected signal routing: %+v", ev)
	}
	// Point-to-point: the sender hears nothing back.
	mustNoEvent(t, guest.Events)

	if err := ctl.HandleAudioConnectRequest(sess, guest.Identity, 10); err != nil {
		t.Fatalf("audio connect request: %v", err)
	}
	mustEvent(t, host.Events, EventAudioConnectRequest)

	err = ctl.HandleSignal(sess, guest.Identity, EventSignalAnswer, 99, []byte(`{}`))
	if !errors.Is(err, ErrTargetNotInRoom) {
		t.Fatalf("expected ErrTargetNotInRoom, got %v", err)
	}
}
