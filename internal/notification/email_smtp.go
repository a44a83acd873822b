package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPSender sends multipart (text + html) mail through a single SMTP relay.
type SMTPSender struct {
	mu     sync.Mutex
	client *mail.Client
	from   string
	logger *zap.Logger
}

func NewSMTPSender(host string, port int, username, password, from string, logger *zap.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{
		client: client,
		from:   from,
		logger: logger.With(zap.String("channel", "email")),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("smtp send panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		s.logger.Error("invalid from address", zap.String("from", s.from), zap.Error(err))
		return false
	}
	if err := msg.To(to); err != nil {
		s.logger.Warn("invalid recipient", zap.String("to", to), zap.Error(err))
		return false
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, html)
	}

	s.mu.Lock()
	err := s.client.DialAndSendWithContext(ctx, msg)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("smtp send failed", zap.String("to", to), zap.Error(err))
		return false
	}
	return true
}
