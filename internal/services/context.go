package services

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

var userIDKey ctxKey = "user_id"
var sessionIDKey ctxKey = "session_id"

// WithUserContext marks ctx as acting for userID.
func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSessionContext records the realtime session a command arrived on, so events
// it causes can skip that session.
func WithSessionContext(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(sessionIDKey)
	if value == nil {
		return "", false
	}
	sessionID, ok := value.(string)
	return sessionID, ok
}
