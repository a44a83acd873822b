package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"casebridge/internal/presence"
	"casebridge/internal/testutil"

	"github.com/google/uuid"
)

type panicConn struct{}

func (panicConn) Send([]byte) bool { panic("closed channel") }
func (panicConn) Close() error     { return nil }

func setup(t *testing.T) (*presence.Registry, *Engine) {
	t.Helper()
	r := presence.NewRegistry(nil, nil)
	return r, NewEngine(r, nil)
}

func register(t *testing.T, r *presence.Registry, user uuid.UUID, conn presence.Connection, rooms ...uuid.UUID) string {
	t.Helper()
	id, err := r.Register(context.Background(), user, conn)
	if err != nil {
		t.Fatal(err)
	}
	for _, room := range rooms {
		if err := r.Subscribe(id, room); err != nil {
			t.Fatal(err)
		}
	}
	return id
}

func TestPublishIsolatesFailures(t *testing.T) {
	r, e := setup(t)
	room := uuid.New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	good := &testutil.Conn{}
	full := &testutil.Conn{Reject: true}
	register(t, r, alice, good, room)
	register(t, r, bob, full, room)
	register(t, r, carol, panicConn{}, room)
	other := &testutil.Conn{}
	register(t, r, uuid.New(), other)

	d := e.Publish(room, KindNewMessage, map[string]string{"content": "hi"})

	if d.Sessions != 1 || d.Failed != 2 {
		t.Fatalf("delivery = %+v, want 1 ok and 2 failed", d)
	}
	if !d.Reached(alice) || d.Reached(bob) {
		t.Errorf("reached users = %v", d.Users)
	}
	frames := good.OfType(string(KindNewMessage))
	if len(frames) != 1 || frames[0].ConversationID != room.String() {
		t.Fatalf("frames = %+v", frames)
	}
	if len(other.Frames()) != 0 {
		t.Error("unsubscribed session received a room event")
	}
}

func TestPublishExclusions(t *testing.T) {
	r, e := setup(t)
	room := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	alicePhone, aliceLaptop, bobConn := &testutil.Conn{}, &testutil.Conn{}, &testutil.Conn{}
	phoneID := register(t, r, alice, alicePhone, room)
	register(t, r, alice, aliceLaptop, room)
	register(t, r, bob, bobConn, room)

	e.Publish(room, KindUserTyping, nil, ExcludeSession(phoneID))
	if len(alicePhone.Frames()) != 0 || len(aliceLaptop.Frames()) != 1 || len(bobConn.Frames()) != 1 {
		t.Fatal("ExcludeSession should only skip the origin session")
	}

	e.Publish(room, KindNewMessage, nil, ExcludeUser(alice))
	if len(aliceLaptop.OfType(string(KindNewMessage))) != 0 || len(bobConn.OfType(string(KindNewMessage))) != 1 {
		t.Fatal("ExcludeUser should skip every session of the user")
	}
}

func TestPushToUser(t *testing.T) {
	r, e := setup(t)
	alice := uuid.New()
	a, b := &testutil.Conn{}, &testutil.Conn{}
	register(t, r, alice, a)
	register(t, r, alice, b)

	d := e.PushToUser(alice, KindNotification, map[string]string{"title": "Case approved"})
	if d.Sessions != 2 {
		t.Fatalf("sessions = %d, want 2", d.Sessions)
	}
	var payload map[string]string
	if err := json.Unmarshal(a.Frames()[0].Payload, &payload); err != nil || payload["title"] != "Case approved" {
		t.Fatalf("payload = %s, err %v", a.Frames()[0].Payload, err)
	}
}

func TestSequenceSerializesPerConversation(t *testing.T) {
	_, e := setup(t)
	room := uuid.New()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Sequence(room, func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent = %d, want 1", maxSeen)
	}
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if len(e.locks) != 0 {
		t.Errorf("locks not released: %d", len(e.locks))
	}
}
