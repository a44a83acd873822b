// Package broadcast delivers room and user events to live presence sessions.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"casebridge/internal/presence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindNewMessage       Kind = "new_message"
	KindMessagesRead     Kind = "messages_read"
	KindMessageDelivered Kind = "message_delivered"
	KindUserTyping       Kind = "user_typing"
	KindNewConversation  Kind = "new_conversation"
	KindUserAdded        Kind = "user_added"
	KindUserLeft         Kind = "user_left"
	KindNotification     Kind = "notification"
	KindAck              Kind = "ack"
	KindError            Kind = "error"
	KindPong             Kind = "pong"
)

// Event is the envelope written to every connection.
type Event struct {
	Type           Kind        `json:"type"`
	ConversationID *uuid.UUID  `json:"conversationId,omitempty"`
	RequestID      string      `json:"requestId,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// Delivery summarizes one publish. Users holds every user with at least one accepted frame.
type Delivery struct {
	Sessions int
	Failed   int
	Users    map[uuid.UUID]struct{}
}

func (d Delivery) Reached(userID uuid.UUID) bool {
	_, ok := d.Users[userID]
	return ok
}

type publishOptions struct {
	excludeSessions map[string]struct{}
	excludeUsers    map[uuid.UUID]struct{}
}

type PublishOption func(*publishOptions)

func ExcludeSession(sessionID string) PublishOption {
	return func(o *publishOptions) {
		if sessionID == "" {
			return
		}
		if o.excludeSessions == nil {
			o.excludeSessions = make(map[string]struct{})
		}
		o.excludeSessions[sessionID] = struct{}{}
	}
}

func ExcludeUser(userID uuid.UUID) PublishOption {
	return func(o *publishOptions) {
		if o.excludeUsers == nil {
			o.excludeUsers = make(map[uuid.UUID]struct{})
		}
		o.excludeUsers[userID] = struct{}{}
	}
}

type Engine struct {
	registry *presence.Registry
	logger   *zap.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[uuid.UUID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(registry *presence.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		logger:   logger.With(zap.String("component", "broadcast")),
		now:      time.Now,
		locks:    make(map[uuid.UUID]*roomLock),
	}
}

// Sequence runs fn while holding the conversation's publish lock. Writers wrap
// commit and publish in it so events leave in commit order.
func (e *Engine) Sequence(conversationID uuid.UUID, fn func() error) error {
	e.locksMu.Lock()
	l, ok := e.locks[conversationID]
	if !ok {
		l = &roomLock{}
		e.locks[conversationID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, conversationID)
		}
		e.locksMu.Unlock()
	}()
	return fn()
}

// Publish delivers an event to every session subscribed to the conversation.
func (e *Engine) Publish(conversationID uuid.UUID, kind Kind, payload interface{}, opts ...PublishOption) Delivery {
	id := conversationID
	data, err := e.encode(Event{Type: kind, ConversationID: &id, Payload: payload})
	if err != nil {
		return Delivery{}
	}
	return e.deliver(e.registry.RoomSessions(conversationID), kind, data, opts)
}

// PushToUser delivers a user-level event to all of the user's sessions.
func (e *Engine) PushToUser(userID uuid.UUID, kind Kind, payload interface{}, opts ...PublishOption) Delivery {
	data, err := e.encode(Event{Type: kind, Payload: payload})
	if err != nil {
		return Delivery{}
	}
	return e.deliver(e.registry.SessionsFor(userID), kind, data, opts)
}

// Encode builds a frame for a single connection, used for acks and errors.
func (e *Engine) Encode(ev Event) ([]byte, error) {
	return e.encode(ev)
}

func (e *Engine) encode(ev Event) ([]byte, error) {
	if ev.Timestamp == 0 {
		ev.Timestamp = e.now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("encode event", zap.String("kind", string(ev.Type)), zap.Error(err))
		return nil, err
	}
	return data, nil
}

func (e *Engine) deliver(sessions []presence.Session, kind Kind, data []byte, opts []PublishOption) Delivery {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	d := Delivery{Users: make(map[uuid.UUID]struct{})}
	for _, s := range sessions {
		if _, skip := o.excludeSessions[s.ID]; skip {
			continue
		}
		if _, skip := o.excludeUsers[s.UserID]; skip {
			continue
		}
		if e.send(s, data) {
			d.Sessions++
			d.Users[s.UserID] = struct{}{}
			continue
		}
		d.Failed++
		e.logger.Warn("session send failed",
			zap.String("kind", string(kind)),
			zap.String("session_id", s.ID),
			zap.String("user_id", s.UserID.String()),
		)
	}
	return d
}

// send isolates one session's failure, including a panicking connection, from the rest.
func (e *Engine) send(s presence.Session, data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session send panicked", zap.String("session_id", s.ID), zap.Any("panic", r))
			ok = false
		}
	}()
	return s.Conn.Send(data)
}
