package websocket

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionLogger provides structured logging for realtime session events
type SessionLogger struct {
	logger *zap.Logger
}

func NewSessionLogger(logger *zap.Logger) *SessionLogger {
	if logger == nil {
		logger = zap.L()
	}
	return &SessionLogger{logger: logger.With(zap.String("component", "websocket"))}
}

func (l *SessionLogger) fields(event string, userID uuid.UUID, sessionID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("session_id", sessionID),
	}, extra...)
}

func (l *SessionLogger) Info(event string, userID uuid.UUID, sessionID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, userID, sessionID, fields)...)
}

func (l *SessionLogger) Debug(event string, userID uuid.UUID, sessionID string, fields ...zap.Field) {
	l.logger.Debug("websocket_event", l.fields(event, userID, sessionID, fields)...)
}

func (l *SessionLogger) Warn(event string, userID uuid.UUID, sessionID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, userID, sessionID, fields)...)
}

func (l *SessionLogger) Error(event string, userID uuid.UUID, sessionID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, userID, sessionID, append(fields, zap.Error(err)))...)
}
