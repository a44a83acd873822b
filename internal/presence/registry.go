// Package presence tracks live realtime sessions and the conversations each is subscribed to.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Connection is the outbound half of a live session.
type Connection interface {
	// Send enqueues payload without blocking and reports whether it was accepted.
	Send(payload []byte) bool
	Close() error
}

// ParticipationLookup returns the conversations a user is currently an active participant of.
type ParticipationLookup interface {
	ListActiveConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Session is a snapshot of one registered connection.
type Session struct {
	ID          string
	UserID      uuid.UUID
	Conn        Connection
	ConnectedAt time.Time
}

type session struct {
	Session
	rooms map[uuid.UUID]struct{}
}

// Registry maps users to their live sessions and rooms to subscribed sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	byUser   map[uuid.UUID]map[string]*session
	rooms    map[uuid.UUID]map[string]*session
	lookup   ParticipationLookup
	logger   *zap.Logger
	now      func() time.Time
}

func NewRegistry(lookup ParticipationLookup, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*session),
		byUser:   make(map[uuid.UUID]map[string]*session),
		rooms:    make(map[uuid.UUID]map[string]*session),
		lookup:   lookup,
		logger:   logger.With(zap.String("component", "presence")),
		now:      time.Now,
	}
}

// Register adds a session for userID and subscribes it to every active conversation of the user.
// The session is inserted before the lookup so concurrent SubscribeUser calls are not lost.
func (r *Registry) Register(ctx context.Context, userID uuid.UUID, conn Connection) (string, error) {
	s := &session{
		Session: Session{
			ID:          uuid.NewString(),
			UserID:      userID,
			Conn:        conn,
			ConnectedAt: r.now(),
		},
		rooms: make(map[uuid.UUID]struct{}),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*session)
	}
	r.byUser[userID][s.ID] = s
	r.mu.Unlock()

	if r.lookup != nil {
		conversationIDs, err := r.lookup.ListActiveConversationIDs(ctx, userID)
		if err != nil {
			r.Unregister(s.ID)
			return "", fmt.Errorf("load participations: %w", err)
		}
		r.mu.Lock()
		if _, ok := r.sessions[s.ID]; ok {
			for _, id := range conversationIDs {
				r.subscribeLocked(s, id)
			}
		}
		r.mu.Unlock()
	}

	r.logger.Debug("session registered",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID.String()),
	)
	return s.ID, nil
}

// Unregister removes the session from the registry and every room. Unknown ids are ignored.
// It reports whether the user has no sessions left.
func (r *Registry) Unregister(sessionID string) (lastSession bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	for roomID := range s.rooms {
		r.unsubscribeLocked(s, roomID)
	}
	if userSessions, ok := r.byUser[s.UserID]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, s.UserID)
			lastSession = true
		}
	}

	r.logger.Debug("session unregistered",
		zap.String("session_id", sessionID),
		zap.String("user_id", s.UserID.String()),
	)
	return lastSession
}

func (r *Registry) SessionsFor(userID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

func (r *Registry) Session(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return s.Session, true
}

func (r *Registry) RoomSessions(conversationID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.rooms[conversationID])
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) IsSubscribed(sessionID string, conversationID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, ok = s.rooms[conversationID]
	return ok
}

func (r *Registry) Subscribe(sessionID string, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, casebridge_errors.ErrNotFound)
	}
	r.subscribeLocked(s, conversationID)
	return nil
}

func (r *Registry) Unsubscribe(sessionID string, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, casebridge_errors.ErrNotFound)
	}
	r.unsubscribeLocked(s, conversationID)
	return nil
}

// SubscribeUser subscribes every live session of userID and returns how many there were.
func (r *Registry) SubscribeUser(userID uuid.UUID, conversationID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byUser[userID] {
		r.subscribeLocked(s, conversationID)
	}
	return len(r.byUser[userID])
}

func (r *Registry) UnsubscribeUser(userID uuid.UUID, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byUser[userID] {
		r.unsubscribeLocked(s, conversationID)
	}
}

// Close closes every connection and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.byUser = make(map[uuid.UUID]map[string]*session)
	r.rooms = make(map[uuid.UUID]map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Conn.Close(); err != nil {
			r.logger.Debug("close session", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

func (r *Registry) subscribeLocked(s *session, conversationID uuid.UUID) {
	s.rooms[conversationID] = struct{}{}
	if r.rooms[conversationID] == nil {
		r.rooms[conversationID] = make(map[string]*session)
	}
	r.rooms[conversationID][s.ID] = s
}

func (r *Registry) unsubscribeLocked(s *session, conversationID uuid.UUID) {
	delete(s.rooms, conversationID)
	if room, ok := r.rooms[conversationID]; ok {
		delete(room, s.ID)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

func snapshot(m map[string]*session) []Session {
	out := make([]Session, 0, len(m))
	for _, s := range m {
		out = append(out, s.Session)
	}
	return out
}
