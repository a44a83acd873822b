package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casebridge/internal/auth"
	"casebridge/internal/broadcast"
	"casebridge/internal/domain/conversation"
	"casebridge/internal/notification"
	"casebridge/internal/presence"
	"casebridge/internal/services"
	"casebridge/internal/testutil"
	"casebridge/internal/typing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	RequestID      string          `json:"requestId"`
	Payload        json.RawMessage `json:"payload"`
}

type harness struct {
	url      string
	verifier *auth.JWTVerifier
	handler  *Handler
	svc      *services.ConversationService
	registry *presence.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testutil.NewStore(t)
	registry := presence.NewRegistry(store.Conversations, nil)
	engine := broadcast.NewEngine(registry, nil)
	orch := notification.NewOrchestrator(store, engine, nil, nil, nil)
	svc := services.NewConversationService(store, registry, engine, notification.NewInlineDispatcher(orch, nil), nil)
	tracker := typing.NewManager(engine, time.Minute, nil)
	t.Cleanup(tracker.Stop)

	verifier := auth.NewJWTVerifier("test-secret")
	h := NewHandler(verifier, registry, svc, tracker, engine, nil)

	router := gin.New()
	router.GET("/v1/ws", h.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &harness{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws",
		verifier: verifier,
		handler:  h,
		svc:      svc,
		registry: registry,
	}
}

func (h *harness) token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	token, err := h.verifier.Sign(user, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// dial connects with a handshake token and waits until the session is registered.
func (h *harness) dial(t *testing.T, user uuid.UUID) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url+"?token="+h.token(t, user), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	write(t, conn, map[string]interface{}{"type": CmdPing, "requestId": "hello"})
	if f := next(t, conn, "pong"); f.RequestID != "hello" {
		t.Fatalf("pong requestId = %q", f.RequestID)
	}
	return conn
}

func (h *harness) group(t *testing.T, creator uuid.UUID, others ...uuid.UUID) uuid.UUID {
	t.Helper()
	c, err := h.svc.CreateConversation(context.Background(), services.CreateConversationInput{
		CreatorID:      creator,
		Type:           conversation.TypeGroup,
		Title:          "Asylum filing",
		ParticipantIDs: others,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c.ID
}

func write(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// next reads until a frame of the given type arrives.
func next(t *testing.T, conn *websocket.Conn, kind string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if f.Type == kind {
			return f
		}
	}
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.url+"?token=garbage", nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("err = %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAuthenticateAsFirstFrame(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	write(t, conn, map[string]interface{}{"type": CmdSendMessage, "requestId": "r0", "content": "hi"})
	f := next(t, conn, "error")
	var e ErrorPayload
	decode(t, f.Payload, &e)
	if e.Code != "UNAUTHENTICATED" || f.RequestID != "r0" {
		t.Fatalf("error frame = %+v %+v", f, e)
	}

	write(t, conn, map[string]interface{}{"type": CmdAuthenticate, "requestId": "r1", "token": "wrong"})
	f = next(t, conn, "error")
	decode(t, f.Payload, &e)
	if e.Code != "UNAUTHENTICATED" || f.RequestID != "r1" {
		t.Fatalf("bad token frame = %+v %+v", f, e)
	}

	write(t, conn, map[string]interface{}{"type": CmdAuthenticate, "requestId": "r2", "token": h.token(t, user)})
	f = next(t, conn, "ack")
	var ack authenticatedPayload
	decode(t, f.Payload, &ack)
	if f.RequestID != "r2" || ack.UserID != user || ack.SessionID == "" {
		t.Fatalf("ack = %+v %+v", f, ack)
	}
	if !h.registry.IsOnline(user) {
		t.Fatal("user should be online after authenticate")
	}
}

func TestSendMessageOverSocket(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	conv := h.group(t, alice, bob)

	bobConn := h.dial(t, bob)
	aliceConn := h.dial(t, alice)

	write(t, aliceConn, map[string]interface{}{
		"type":           CmdSendMessage,
		"requestId":      "m1",
		"conversationId": conv,
		"content":        "Your biometrics appointment is confirmed",
	})

	ack := next(t, aliceConn, "ack")
	var sent services.MessageView
	decode(t, ack.Payload, &sent)
	if ack.RequestID != "m1" || sent.Content != "Your biometrics appointment is confirmed" || sent.SenderID != alice {
		t.Fatalf("ack = %+v %+v", ack, sent)
	}

	f := next(t, bobConn, "new_message")
	var got services.MessageView
	decode(t, f.Payload, &got)
	if got.ID != sent.ID || f.ConversationID != conv.String() {
		t.Fatalf("bob got %+v on %s", got, f.ConversationID)
	}
}

func TestSendMessageToForeignConversation(t *testing.T) {
	h := newHarness(t)
	alice, bob, mallory := uuid.New(), uuid.New(), uuid.New()
	conv := h.group(t, alice, bob)

	conn := h.dial(t, mallory)
	write(t, conn, map[string]interface{}{
		"type": CmdSendMessage, "requestId": "x", "conversationId": conv, "content": "hi",
	})
	f := next(t, conn, "error")
	var e ErrorPayload
	decode(t, f.Payload, &e)
	if e.Code != "NOT_AUTHORIZED" || e.RequestID != "x" {
		t.Fatalf("error = %+v", e)
	}
}

func TestTypingReachesOthersAndClearsOnDisconnect(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	conv := h.group(t, alice, bob)

	bobConn := h.dial(t, bob)
	aliceConn := h.dial(t, alice)

	write(t, aliceConn, map[string]interface{}{
		"type": CmdTyping, "requestId": "t1", "conversationId": conv, "isTyping": true,
	})
	if f := next(t, aliceConn, "ack"); f.RequestID != "t1" {
		t.Fatalf("ack = %+v", f)
	}

	var ev typing.Event
	decode(t, next(t, bobConn, "user_typing").Payload, &ev)
	if !ev.IsTyping || ev.UserID != alice {
		t.Fatalf("typing = %+v", ev)
	}

	aliceConn.Close()
	decode(t, next(t, bobConn, "user_typing").Payload, &ev)
	if ev.IsTyping || ev.UserID != alice {
		t.Fatalf("after disconnect typing = %+v", ev)
	}
}

func TestTypingRequiresSubscription(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, uuid.New())

	write(t, conn, map[string]interface{}{
		"type": CmdTyping, "requestId": "t", "conversationId": uuid.New(), "isTyping": true,
	})
	var e ErrorPayload
	decode(t, next(t, conn, "error").Payload, &e)
	if e.Code != "NOT_AUTHORIZED" {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestSubscribeJoinsRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()

	conn := h.dial(t, bob)
	// bob is live, so creation already placed the session in the room. Subscribe is idempotent.
	conv := h.group(t, alice, bob)

	write(t, conn, map[string]interface{}{"type": CmdSubscribe, "requestId": "s1", "conversationId": conv})
	if f := next(t, conn, "ack"); f.RequestID != "s1" {
		t.Fatalf("ack = %+v", f)
	}
	if len(h.registry.RoomSessions(conv)) != 1 {
		t.Fatalf("room sessions = %d", len(h.registry.RoomSessions(conv)))
	}

	write(t, conn, map[string]interface{}{"type": CmdSubscribe, "requestId": "s2", "conversationId": uuid.New()})
	var e ErrorPayload
	decode(t, next(t, conn, "error").Payload, &e)
	if e.Code != "NOT_FOUND" {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestCommandRateLimit(t *testing.T) {
	h := newHarness(t)
	h.handler.limits = CommandLimits{MaxMessages: 1, MaxReceipts: 1, MaxTyping: 1, MaxControl: 2}
	conn := h.dial(t, uuid.New())

	write(t, conn, map[string]interface{}{"type": CmdPing, "requestId": "p2"})
	next(t, conn, "pong")

	write(t, conn, map[string]interface{}{"type": CmdPing, "requestId": "p3"})
	var e ErrorPayload
	decode(t, next(t, conn, "error").Payload, &e)
	if e.Code != "RATE_LIMITED" || e.RequestID != "p3" {
		t.Fatalf("error = %+v", e)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, uuid.New())

	write(t, conn, map[string]interface{}{"type": "launch", "requestId": "u"})
	var e ErrorPayload
	decode(t, next(t, conn, "error").Payload, &e)
	if e.Code != "INVALID_REQUEST" {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestCommandLimiterRefills(t *testing.T) {
	rl := NewCommandLimiter(CommandLimits{MaxMessages: 1})
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	if !rl.Allow(CmdSendMessage) || rl.Allow(CmdSendMessage) {
		t.Fatal("expected one message per window")
	}
	clock = clock.Add(time.Minute)
	if !rl.Allow(CmdSendMessage) {
		t.Fatal("bucket should refill after a minute")
	}
}
