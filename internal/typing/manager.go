// Package typing tracks ephemeral typing indicators per conversation.
package typing

import (
	"sync"
	"time"

	"casebridge/internal/broadcast"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 5 * time.Second

// Publisher is the subset of the broadcast engine the manager needs.
type Publisher interface {
	Publish(conversationID uuid.UUID, kind broadcast.Kind, payload interface{}, opts ...broadcast.PublishOption) broadcast.Delivery
}

// Event is the user_typing payload.
type Event struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	IsTyping       bool      `json:"isTyping"`
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

type Manager struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]map[uuid.UUID]*entry
	gen     uint64
	ttl     time.Duration
	pub     Publisher
	logger  *zap.Logger
	stopped bool
}

func NewManager(pub Publisher, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		rooms:  make(map[uuid.UUID]map[uuid.UUID]*entry),
		ttl:    ttl,
		pub:    pub,
		logger: logger.With(zap.String("component", "typing")),
	}
}

// SetTyping records the flag and broadcasts it to the room, skipping originSessionID.
// A true flag expires after the TTL unless refreshed.
func (m *Manager) SetTyping(conversationID, userID uuid.UUID, isTyping bool, originSessionID string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.removeLocked(conversationID, userID)
	if isTyping {
		m.gen++
		gen := m.gen
		if m.rooms[conversationID] == nil {
			m.rooms[conversationID] = make(map[uuid.UUID]*entry)
		}
		m.rooms[conversationID][userID] = &entry{
			gen:   gen,
			timer: time.AfterFunc(m.ttl, func() { m.expire(conversationID, userID, gen) }),
		}
	}
	m.mu.Unlock()

	m.pub.Publish(conversationID, broadcast.KindUserTyping,
		Event{ConversationID: conversationID, UserID: userID, IsTyping: isTyping},
		broadcast.ExcludeSession(originSessionID))
}

// Typing returns the users currently typing in the conversation.
func (m *Manager) Typing(conversationID uuid.UUID) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, 0, len(m.rooms[conversationID]))
	for userID := range m.rooms[conversationID] {
		out = append(out, userID)
	}
	return out
}

// ClearUser drops every indicator of the user and broadcasts isTyping false for each.
func (m *Manager) ClearUser(userID uuid.UUID) {
	m.mu.Lock()
	var cleared []uuid.UUID
	for conversationID, users := range m.rooms {
		if _, ok := users[userID]; ok {
			m.removeLocked(conversationID, userID)
			cleared = append(cleared, conversationID)
		}
	}
	m.mu.Unlock()

	for _, conversationID := range cleared {
		m.publishStopped(conversationID, userID)
	}
}

// Stop disarms all timers. Later calls to SetTyping are ignored.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for conversationID, users := range m.rooms {
		for _, e := range users {
			e.timer.Stop()
		}
		delete(m.rooms, conversationID)
	}
}

func (m *Manager) expire(conversationID, userID uuid.UUID, gen uint64) {
	m.mu.Lock()
	e, ok := m.rooms[conversationID][userID]
	if !ok || e.gen != gen || m.stopped {
		m.mu.Unlock()
		return
	}
	m.removeLocked(conversationID, userID)
	m.mu.Unlock()

	m.logger.Debug("typing expired",
		zap.String("conversation_id", conversationID.String()),
		zap.String("user_id", userID.String()),
	)
	m.publishStopped(conversationID, userID)
}

func (m *Manager) publishStopped(conversationID, userID uuid.UUID) {
	m.pub.Publish(conversationID, broadcast.KindUserTyping,
		Event{ConversationID: conversationID, UserID: userID, IsTyping: false},
		broadcast.ExcludeUser(userID))
}

func (m *Manager) removeLocked(conversationID, userID uuid.UUID) {
	users, ok := m.rooms[conversationID]
	if !ok {
		return
	}
	if e, ok := users[userID]; ok {
		e.timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(m.rooms, conversationID)
	}
}
