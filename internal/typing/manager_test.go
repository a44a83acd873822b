package typing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"casebridge/internal/broadcast"
	"casebridge/internal/presence"
	"casebridge/internal/testutil"

	"github.com/google/uuid"
)

type fixture struct {
	registry *presence.Registry
	manager  *Manager
	room     uuid.UUID
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	r := presence.NewRegistry(nil, nil)
	m := NewManager(broadcast.NewEngine(r, nil), ttl, nil)
	t.Cleanup(m.Stop)
	return &fixture{registry: r, manager: m, room: uuid.New()}
}

func (f *fixture) join(t *testing.T, user uuid.UUID) (string, *testutil.Conn) {
	t.Helper()
	conn := &testutil.Conn{}
	id, err := f.registry.Register(context.Background(), user, conn)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Subscribe(id, f.room); err != nil {
		t.Fatal(err)
	}
	return id, conn
}

func decode(t *testing.T, frame testutil.Frame) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestTypingNotEchoedToOrigin(t *testing.T) {
	f := newFixture(t, time.Minute)
	alice, bob := uuid.New(), uuid.New()
	phone, phoneConn := f.join(t, alice)
	_, laptopConn := f.join(t, alice)
	_, bobConn := f.join(t, bob)

	f.manager.SetTyping(f.room, alice, true, phone)

	if n := len(phoneConn.Frames()); n != 0 {
		t.Fatalf("origin session got %d frames", n)
	}
	if n := len(laptopConn.OfType(string(broadcast.KindUserTyping))); n != 1 {
		t.Errorf("other session of the same user got %d frames, want 1", n)
	}
	frames := bobConn.OfType(string(broadcast.KindUserTyping))
	if len(frames) != 1 {
		t.Fatalf("bob frames = %d", len(frames))
	}
	if ev := decode(t, frames[0]); ev.UserID != alice || !ev.IsTyping {
		t.Errorf("event = %+v", ev)
	}
	if got := f.manager.Typing(f.room); len(got) != 1 || got[0] != alice {
		t.Errorf("Typing = %v", got)
	}
}

func TestTypingFalseClearsEntry(t *testing.T) {
	f := newFixture(t, time.Minute)
	alice := uuid.New()
	session, _ := f.join(t, alice)

	f.manager.SetTyping(f.room, alice, true, session)
	f.manager.SetTyping(f.room, alice, false, session)

	if got := f.manager.Typing(f.room); len(got) != 0 {
		t.Fatalf("Typing = %v, want empty", got)
	}
}

func TestTypingExpires(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	alice, bob := uuid.New(), uuid.New()
	session, aliceConn := f.join(t, alice)
	_, bobConn := f.join(t, bob)

	f.manager.SetTyping(f.room, alice, true, session)

	deadline := time.Now().Add(2 * time.Second)
	for len(bobConn.OfType(string(broadcast.KindUserTyping))) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("typing indicator did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	frames := bobConn.OfType(string(broadcast.KindUserTyping))
	if ev := decode(t, frames[1]); ev.IsTyping {
		t.Errorf("expiry event should carry isTyping false")
	}
	if len(aliceConn.Frames()) != 0 {
		t.Error("expiry must not be sent to the typing user")
	}
	if got := f.manager.Typing(f.room); len(got) != 0 {
		t.Errorf("Typing = %v after expiry", got)
	}
}

func TestRefreshResetsTTL(t *testing.T) {
	f := newFixture(t, 80*time.Millisecond)
	alice := uuid.New()
	session, _ := f.join(t, alice)

	f.manager.SetTyping(f.room, alice, true, session)
	time.Sleep(50 * time.Millisecond)
	f.manager.SetTyping(f.room, alice, true, session)
	time.Sleep(50 * time.Millisecond)

	if got := f.manager.Typing(f.room); len(got) != 1 {
		t.Fatalf("refreshed entry expired early: %v", got)
	}
}

func TestClearUser(t *testing.T) {
	f := newFixture(t, time.Minute)
	alice, bob := uuid.New(), uuid.New()
	session, _ := f.join(t, alice)
	_, bobConn := f.join(t, bob)

	f.manager.SetTyping(f.room, alice, true, session)
	f.manager.ClearUser(alice)

	frames := bobConn.OfType(string(broadcast.KindUserTyping))
	if len(frames) != 2 || decode(t, frames[1]).IsTyping {
		t.Fatalf("frames = %+v", frames)
	}
	if got := f.manager.Typing(f.room); len(got) != 0 {
		t.Errorf("Typing = %v", got)
	}
}
