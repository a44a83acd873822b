package notification

import (
	"context"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type TwilioSender struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

func NewTwilioSender(accountSID, authToken, from string, logger *zap.Logger) *TwilioSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:   from,
		logger: logger.With(zap.String("channel", "sms")),
	}
}

// Send posts the message to the Twilio Messages API. The SDK call is not context aware,
// so an already cancelled context short-circuits before the request.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("twilio send panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	if ctx.Err() != nil {
		return false
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		s.logger.Error("twilio send failed", zap.String("to", to), zap.Error(err))
		return false
	}
	if resp.Sid != nil {
		s.logger.Debug("sms queued", zap.String("sid", *resp.Sid))
	}
	return true
}
