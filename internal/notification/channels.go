package notification

import (
	"context"

	"go.uber.org/zap"
)

// EmailSender delivers one email. It reports false on any failure and never panics.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html, text string) bool
}

// SMSSender delivers one text message. It reports false on any failure and never panics.
type SMSSender interface {
	Send(ctx context.Context, to, body string) bool
}

// LogEmailSender writes emails to the log instead of sending them.
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmailSender{logger: logger.With(zap.String("channel", "email"))}
}

func (s *LogEmailSender) Send(_ context.Context, to, subject, _, text string) bool {
	s.logger.Info("email suppressed",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("text_len", len(text)),
	)
	return true
}

type LogSMSSender struct {
	logger *zap.Logger
}

func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{logger: logger.With(zap.String("channel", "sms"))}
}

func (s *LogSMSSender) Send(_ context.Context, to, body string) bool {
	s.logger.Info("sms suppressed", zap.String("to", to), zap.Int("body_len", len(body)))
	return true
}
