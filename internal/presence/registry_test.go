package presence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"casebridge/internal/testutil"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
)

type staticLookup struct {
	rooms map[uuid.UUID][]uuid.UUID
	err   error
}

func (l staticLookup) ListActiveConversationIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return l.rooms[userID], l.err
}

func TestRegisterSubscribesActiveConversations(t *testing.T) {
	alice := uuid.New()
	roomA, roomB := uuid.New(), uuid.New()
	r := NewRegistry(staticLookup{rooms: map[uuid.UUID][]uuid.UUID{alice: {roomA, roomB}}}, nil)

	phone, laptop := &testutil.Conn{}, &testutil.Conn{}
	s1, err := r.Register(context.Background(), alice, phone)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := r.Register(context.Background(), alice, laptop)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(r.SessionsFor(alice)); got != 2 {
		t.Fatalf("sessions = %d, want 2", got)
	}
	if !r.IsSubscribed(s1, roomA) || !r.IsSubscribed(s2, roomB) {
		t.Error("sessions should be subscribed to the user's conversations")
	}
	if got := len(r.RoomSessions(roomA)); got != 2 {
		t.Errorf("room sessions = %d, want 2", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	alice := uuid.New()
	room := uuid.New()
	r := NewRegistry(staticLookup{rooms: map[uuid.UUID][]uuid.UUID{alice: {room}}}, nil)

	s1, _ := r.Register(context.Background(), alice, &testutil.Conn{})
	s2, _ := r.Register(context.Background(), alice, &testutil.Conn{})

	if last := r.Unregister(s1); last {
		t.Error("first unregister should not be the last session")
	}
	if last := r.Unregister(s1); last {
		t.Error("repeated unregister should be a no-op")
	}
	if r.IsSubscribed(s1, room) {
		t.Error("unregistered session still subscribed")
	}
	if last := r.Unregister(s2); !last {
		t.Error("removing final session should report last")
	}
	if r.IsOnline(alice) {
		t.Error("user should be offline")
	}
	if got := len(r.RoomSessions(room)); got != 0 {
		t.Errorf("room sessions = %d, want 0", got)
	}
}

func TestRegisterLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	r := NewRegistry(staticLookup{err: boom}, nil)
	alice := uuid.New()

	if _, err := r.Register(context.Background(), alice, &testutil.Conn{}); !errors.Is(err, boom) {
		t.Fatalf("Register error = %v", err)
	}
	if r.IsOnline(alice) {
		t.Error("failed register must not leave a session behind")
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	r := NewRegistry(nil, nil)
	if err := r.Subscribe("missing", uuid.New()); !errors.Is(err, casebridge_errors.ErrNotFound) {
		t.Fatalf("Subscribe error = %v", err)
	}
}

func TestSubscribeUserReachesEverySession(t *testing.T) {
	r := NewRegistry(nil, nil)
	bob := uuid.New()
	room := uuid.New()
	s1, _ := r.Register(context.Background(), bob, &testutil.Conn{})
	s2, _ := r.Register(context.Background(), bob, &testutil.Conn{})

	if n := r.SubscribeUser(bob, room); n != 2 {
		t.Fatalf("SubscribeUser = %d, want 2", n)
	}
	if !r.IsSubscribed(s1, room) || !r.IsSubscribed(s2, room) {
		t.Fatal("both sessions should be subscribed")
	}
	r.UnsubscribeUser(bob, room)
	if r.IsSubscribed(s1, room) || len(r.RoomSessions(room)) != 0 {
		t.Fatal("UnsubscribeUser left subscriptions behind")
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil, nil)
	room := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := uuid.New()
			id, err := r.Register(context.Background(), u, &testutil.Conn{})
			if err != nil {
				t.Error(err)
				return
			}
			_ = r.Subscribe(id, room)
			r.Unregister(id)
		}()
	}
	wg.Wait()
	if got := len(r.RoomSessions(room)); got != 0 {
		t.Errorf("room sessions = %d after all unregistered", got)
	}
}

func TestCloseClosesConnections(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := &testutil.Conn{}
	u := uuid.New()
	if _, err := r.Register(context.Background(), u, conn); err != nil {
		t.Fatal(err)
	}
	r.Close()
	if !conn.Closed() {
		t.Error("connection not closed")
	}
	if r.IsOnline(u) {
		t.Error("registry not emptied")
	}
}
