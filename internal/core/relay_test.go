package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func newRelayFixture(t *testing.T) (*Relay, *Registry, *Session) {
	t.Helper()

	st := newFakeStore()
	room := seedLiveRoom(st, 1, 10, 5)
	registry := NewRegistry(testLogger())
	sess := NewSession(room, st, registry, testLogger())
	return NewRelay(registry, testLogger()), registry, sess
}

func TestRelayDeliversToTarget(t *testing.T) {
	ctx := context.Background()
	relay, registry, sess := newRelayFixture(t)

	from := Identity{UserID: 10, Username: "alice"}
	target := Identity{UserID: 20, Username: "bob"}
	for _, id := range []Identity{from, target} {
		if _, err := sess.Admit(ctx, id); err != nil {
			t.Fatalf("admit %d: %v", id.UserID, err)
		}
	}

	targetClient := NewClient("b", target, 4)
	registry.Register(targetClient)

	payload := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	err := relay.Relay(sess, from, target.UserID, Event{Kind: EventSignalOffer, Payload: payload})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}

	ev := mustEvent(t, targetClient.Events, EventSignalOffer)
	if ev.From != from || ev.Target != target.UserID || ev.RoomID != 1 {
		t.Fatalf("unexpected routing fields: %+v", ev)
	}
	if !bytes.Equal(ev.Payload, payload) {
		t.Fatalf("payload altered in transit: %s", ev.Payload)
	}
}

func TestRelayRejectsNonMemberTarget(t *testing.T) {
	ctx := context.Background()
	relay, registry, sess := newRelayFixture(t)

	from := Identity{UserID: 10, Username: "alice"}
	if _, err := sess.Admit(ctx, from); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// The target is registered (still connected) but holds no active
	// membership; traffic must not reach it.
	departed := NewClient("b", Identity{UserID: 20}, 4)
	registry.Register(departed)

	err := relay.Relay(sess, from, 20, Event{Kind: EventSignalCandidate, Payload: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrTargetNotInRoom) {
		t.Fatalf("expected ErrTargetNotInRoom, got %v", err)
	}
	mustNoEvent(t, departed.Events)
}

func TestRelayAfterTargetDismissed(t *testing.T) {
	ctx := context.Background()
	relay, registry, sess := newRelayFixture(t)

	from := Identity{UserID: 10}
	target := Identity{UserID: 20}
	for _, id := range []Identity{from, target} {
		if _, err := sess.Admit(ctx, id); err != nil {
			t.Fatalf("admit %d: %v", id.UserID, err)
		}
	}
	targetClient := NewClient("b", target, 4)
	registry.Register(targetClient)

	sess.Dismiss(ctx, target.UserID)

	err := relay.Relay(sess, from, target.UserID, Event{Kind: EventSignalAnswer, Payload: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrTargetNotInRoom) {
		t.Fatalf("expected ErrTargetNotInRoom after dismissal, got %v", err)
	}
	mustNoEvent(t, targetClient.Events)
}
