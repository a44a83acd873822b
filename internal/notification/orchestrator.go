// Package notification fans notifications out to the in-app, email and SMS channels.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"casebridge/internal/broadcast"
	entity "casebridge/internal/domain/notification"
	"casebridge/internal/domain/user"
	"casebridge/internal/repository"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Request describes one notification for one user.
type Request struct {
	UserID     uuid.UUID              `json:"userId"`
	Type       entity.Type            `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	EntityID   string                 `json:"entityId,omitempty"`
	EntityType string                 `json:"entityType,omitempty"`
	Link       string                 `json:"link,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ScheduleID *uuid.UUID             `json:"scheduleId,omitempty"`
}

func (r Request) Validate() error {
	switch {
	case r.UserID == uuid.Nil:
		return fmt.Errorf("userId is required: %w", casebridge_errors.ErrInvalidInput)
	case r.Type == "":
		return fmt.Errorf("type is required: %w", casebridge_errors.ErrInvalidInput)
	case !knownType(r.Type):
		return fmt.Errorf("unknown notification type %q: %w", r.Type, casebridge_errors.ErrInvalidInput)
	case r.Title == "":
		return fmt.Errorf("title is required: %w", casebridge_errors.ErrInvalidInput)
	}
	return nil
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeDisabled  Outcome = "disabled"
	OutcomeDuplicate Outcome = "duplicate"
)

type ChannelResult struct {
	Outcome Outcome
	Err     error
}

type Result struct {
	NotificationID uuid.UUID
	InApp          ChannelResult
	Email          ChannelResult
	SMS            ChannelResult
}

// Notifier is satisfied by the Orchestrator and used by dispatchers and the scheduler.
type Notifier interface {
	Notify(ctx context.Context, req Request) (Result, error)
}

// Pusher delivers user level events to live sessions.
type Pusher interface {
	PushToUser(userID uuid.UUID, kind broadcast.Kind, payload interface{}, opts ...broadcast.PublishOption) broadcast.Delivery
}

// Payload is the body of the realtime notification event.
type Payload struct {
	ID         uuid.UUID       `json:"id"`
	Type       entity.Type     `json:"type"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	EntityID   string          `json:"entityId,omitempty"`
	EntityType string          `json:"entityType,omitempty"`
	Link       string          `json:"link,omitempty"`
	IsRead     bool            `json:"isRead"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func NewPayload(n entity.Notification) Payload {
	p := Payload{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		EntityID:   n.EntityID.String,
		EntityType: n.EntityType.String,
		Link:       n.Link.String,
		IsRead:     n.IsRead,
		CreatedAt:  n.CreatedAt,
	}
	if len(n.Metadata) > 0 {
		p.Metadata = json.RawMessage(n.Metadata)
	}
	return p
}

type Orchestrator struct {
	store    *repository.Store
	pusher   Pusher
	email    EmailSender
	sms      SMSSender
	renderer renderer
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(store *repository.Store, pusher Pusher, email EmailSender, sms SMSSender, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "notification"))
	if email == nil {
		email = NewLogEmailSender(logger)
	}
	if sms == nil {
		sms = NewLogSMSSender(logger)
	}
	return &Orchestrator{
		store:    store,
		pusher:   pusher,
		email:    email,
		sms:      sms,
		renderer: renderer{templates: store.Templates},
		logger:   logger,
		now:      time.Now,
	}
}

// Notify delivers req on every channel enabled for the user and type.
// Channel failures are reported in the Result, never as the returned error.
func (o *Orchestrator) Notify(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	pref, err := o.preference(ctx, req.UserID, req.Type)
	if err != nil {
		return Result{}, fmt.Errorf("load preference: %w", err)
	}

	res := Result{
		InApp: ChannelResult{Outcome: OutcomeDisabled},
		Email: ChannelResult{Outcome: OutcomeDisabled},
		SMS:   ChannelResult{Outcome: OutcomeDisabled},
	}

	if pref.InApp {
		id, err := o.deliverInApp(ctx, req)
		switch {
		case err == nil:
			res.NotificationID = id
			res.InApp = ChannelResult{Outcome: OutcomeDelivered}
		case errors.Is(err, casebridge_errors.ErrAlreadyExists) && req.ScheduleID != nil:
			dup := ChannelResult{Outcome: OutcomeDuplicate}
			res.InApp, res.Email, res.SMS = dup, dup, dup
			return res, nil
		default:
			res.InApp = failed("in-app", err)
		}
	}

	if !pref.Email && !pref.SMS {
		return res, nil
	}

	contact, err := o.store.Contacts.Get(ctx, req.UserID)
	if err != nil {
		if pref.Email {
			res.Email = failed("email", fmt.Errorf("resolve contact: %w", err))
		}
		if pref.SMS {
			res.SMS = failed("sms", fmt.Errorf("resolve contact: %w", err))
		}
		o.logResult(req, res)
		return res, nil
	}

	vars := templateVars(req, contact)
	var wg sync.WaitGroup
	if pref.Email {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Email = o.guard("email", func() ChannelResult { return o.deliverEmail(ctx, req.Type, contact, vars) })
		}()
	}
	if pref.SMS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.SMS = o.guard("sms", func() ChannelResult { return o.deliverSMS(ctx, req.Type, contact, vars) })
		}()
	}
	wg.Wait()

	o.logResult(req, res)
	return res, nil
}

func (o *Orchestrator) deliverInApp(ctx context.Context, req Request) (uuid.UUID, error) {
	n := entity.Notification{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		EntityID:   nullString(req.EntityID),
		EntityType: nullString(req.EntityType),
		Link:       nullString(req.Link),
		CreatedAt:  o.now(),
	}
	if req.ScheduleID != nil {
		n.ScheduleID = uuid.NullUUID{UUID: *req.ScheduleID, Valid: true}
	}
	if len(req.Data) > 0 {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode data: %w", err)
		}
		n.Metadata = datatypes.JSON(raw)
	}
	if err := o.store.Notifications.Create(ctx, &n); err != nil {
		return uuid.Nil, err
	}
	if o.pusher != nil {
		o.pusher.PushToUser(req.UserID, broadcast.KindNotification, NewPayload(n))
	}
	return n.ID, nil
}

func (o *Orchestrator) deliverEmail(ctx context.Context, t entity.Type, contact user.Contact, vars map[string]interface{}) ChannelResult {
	if !contact.Email.Valid || contact.Email.String == "" {
		return failed("email", errors.New("no email address on file"))
	}
	msg, err := o.renderer.email(ctx, t, vars)
	if err != nil {
		return failed("email", fmt.Errorf("render: %w", err))
	}
	if !o.email.Send(ctx, contact.Email.String, msg.Subject, msg.HTML, msg.Text) {
		return failed("email", errors.New("sender rejected message"))
	}
	return ChannelResult{Outcome: OutcomeDelivered}
}

func (o *Orchestrator) deliverSMS(ctx context.Context, t entity.Type, contact user.Contact, vars map[string]interface{}) ChannelResult {
	if !contact.Phone.Valid || contact.Phone.String == "" {
		return failed("sms", errors.New("no phone number on file"))
	}
	body, err := o.renderer.sms(ctx, t, vars)
	if err != nil {
		return failed("sms", fmt.Errorf("render: %w", err))
	}
	if !o.sms.Send(ctx, contact.Phone.String, body) {
		return failed("sms", errors.New("sender rejected message"))
	}
	return ChannelResult{Outcome: OutcomeDelivered}
}

// guard turns a panicking adapter into a failed channel result.
func (o *Orchestrator) guard(channel string, fn func() ChannelResult) (res ChannelResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("channel panicked", zap.String("channel", channel), zap.Any("panic", r))
			res = failed(channel, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

func (o *Orchestrator) preference(ctx context.Context, userID uuid.UUID, t entity.Type) (entity.Preference, error) {
	pref, err := o.store.Notifications.GetPreference(ctx, userID, t)
	if errors.Is(err, casebridge_errors.ErrNotFound) {
		return entity.DefaultPreference(userID, t), nil
	}
	return pref, err
}

func (o *Orchestrator) logResult(req Request, res Result) {
	fields := []zap.Field{
		zap.String("user_id", req.UserID.String()),
		zap.String("type", string(req.Type)),
		zap.String("in_app", string(res.InApp.Outcome)),
		zap.String("email", string(res.Email.Outcome)),
		zap.String("sms", string(res.SMS.Outcome)),
	}
	if res.Email.Err != nil || res.SMS.Err != nil || res.InApp.Err != nil {
		o.logger.Warn("notification partially delivered", append(fields,
			zap.NamedError("in_app_error", res.InApp.Err),
			zap.NamedError("email_error", res.Email.Err),
			zap.NamedError("sms_error", res.SMS.Err),
		)...)
		return
	}
	o.logger.Debug("notification delivered", fields...)
}

func failed(channel string, err error) ChannelResult {
	return ChannelResult{
		Outcome: OutcomeFailed,
		Err:     fmt.Errorf("%s: %v: %w", channel, err, casebridge_errors.ErrChannelDeliveryFailed),
	}
}

func templateVars(req Request, contact user.Contact) map[string]interface{} {
	vars := make(map[string]interface{}, len(req.Data)+6)
	for k, v := range req.Data {
		vars[k] = v
	}
	vars["title"] = req.Title
	vars["message"] = req.Message
	vars["link"] = req.Link
	vars["type"] = string(req.Type)
	vars["entityId"] = req.EntityID
	vars["recipientName"] = contact.DisplayName
	return vars
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
