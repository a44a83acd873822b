package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	entity "casebridge/internal/domain/notification"
	"casebridge/internal/repository"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Immediate is returned by Schedule when the request was delivered synchronously.
const Immediate = "immediate"

const (
	fireTimeout      = 30 * time.Second
	maxFireAttempts  = 3
	retryBackoffBase = 30 * time.Second
)

// Scheduler persists future notifications and fires them with one-shot timers.
type Scheduler struct {
	schedules repository.ScheduleRepository
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
	backoff   time.Duration

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	firing  map[uuid.UUID]struct{}
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(store *repository.Store, n Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		schedules: store.Schedules,
		notifier:  n,
		logger:    logger.With(zap.String("component", "scheduler")),
		now:       time.Now,
		backoff:   retryBackoffBase,
		timers:    make(map[uuid.UUID]*time.Timer),
		firing:    make(map[uuid.UUID]struct{}),
	}
}

// Schedule delivers req at deliverAt. A time at or before now is delivered before
// returning and yields Immediate, otherwise the new schedule id is returned.
func (s *Scheduler) Schedule(ctx context.Context, req Request, deliverAt time.Time) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if !deliverAt.After(s.now()) {
		if _, err := s.notifier.Notify(ctx, req); err != nil {
			return "", err
		}
		return Immediate, nil
	}

	req.ScheduleID = nil
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	row := entity.Scheduled{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Payload:   datatypes.JSON(payload),
		DeliverAt: deliverAt.UTC(),
		Status:    entity.SchedulePending,
		CreatedAt: s.now(),
	}
	if err := s.schedules.Create(ctx, &row); err != nil {
		return "", fmt.Errorf("persist schedule: %w", err)
	}
	s.arm(row.ID, row.DeliverAt)

	s.logger.Info("notification scheduled",
		zap.String("schedule_id", row.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Time("deliver_at", row.DeliverAt),
	)
	return row.ID.String(), nil
}

// Cancel moves a pending schedule to CANCELLED and disarms its timer.
// A schedule whose delivery is already running cannot be cancelled.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.cancel(ctx, id, nil)
}

// CancelForUser is Cancel restricted to schedules addressed to userID.
func (s *Scheduler) CancelForUser(ctx context.Context, id, userID uuid.UUID) error {
	return s.cancel(ctx, id, &userID)
}

func (s *Scheduler) cancel(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	row, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	if owner != nil && row.UserID != *owner {
		return fmt.Errorf("schedule %s: %w", id, casebridge_errors.ErrNotAuthorized)
	}

	// Claiming the id keeps fire out while the status changes.
	s.mu.Lock()
	if _, busy := s.firing[id]; busy {
		s.mu.Unlock()
		return fmt.Errorf("schedule %s is being delivered: %w", id, casebridge_errors.ErrInvalidState)
	}
	s.firing[id] = struct{}{}
	s.mu.Unlock()

	ok, err := s.schedules.Transition(ctx, id, entity.SchedulePending, entity.ScheduleCancelled, s.now())

	s.mu.Lock()
	delete(s.firing, id)
	s.mu.Unlock()

	if err != nil {
		// A timer that expired during the claim was skipped, so put it back.
		if row.Status == entity.SchedulePending {
			s.arm(id, row.DeliverAt)
		}
		return err
	}
	if !ok {
		return fmt.Errorf("schedule %s is no longer pending: %w", id, casebridge_errors.ErrInvalidState)
	}
	s.disarm(id)
	return nil
}

// Recover loads pending schedules after a restart. Due rows fire before Recover
// returns and the rest are re-armed. It returns the number of rows handled.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	rows, err := s.schedules.ListPending(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending schedules: %w", err)
	}
	now := s.now()
	for _, row := range rows {
		if row.DeliverAt.After(now) {
			s.arm(row.ID, row.DeliverAt)
			continue
		}
		s.fire(ctx, row.ID)
	}
	s.logger.Info("schedules recovered", zap.Int("count", len(rows)))
	return len(rows), nil
}

// Stop disarms every timer and waits for in-flight deliveries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) arm(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		s.fire(ctx, id)
	})
}

func (s *Scheduler) disarm(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// fire delivers one schedule at most once per process. The unique schedule id on
// the in-app row covers a crash between delivery and the status update.
func (s *Scheduler) fire(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	if _, busy := s.firing[id]; busy {
		s.mu.Unlock()
		return
	}
	s.firing[id] = struct{}{}
	delete(s.timers, id)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.firing, id)
		s.mu.Unlock()
	}()

	logger := s.logger.With(zap.String("schedule_id", id.String()))

	row, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		logger.Error("load schedule", zap.Error(err))
		return
	}
	if row.Status != entity.SchedulePending {
		return
	}

	var req Request
	if err := json.Unmarshal(row.Payload, &req); err != nil {
		logger.Error("decode schedule payload", zap.Error(err))
		if err := s.schedules.RecordAttempt(ctx, id, err.Error()); err != nil {
			logger.Error("record attempt", zap.Error(err))
		}
		return
	}
	scheduleID := row.ID
	req.ScheduleID = &scheduleID

	res, err := s.notifier.Notify(ctx, req)
	if err != nil {
		s.retry(ctx, row, err, logger)
		return
	}

	ok, err := s.schedules.Transition(ctx, id, entity.SchedulePending, entity.ScheduleDelivered, s.now())
	if err != nil {
		logger.Error("mark schedule delivered", zap.Error(err))
		return
	}
	if ok {
		logger.Info("scheduled notification fired",
			zap.String("in_app", string(res.InApp.Outcome)),
			zap.String("email", string(res.Email.Outcome)),
			zap.String("sms", string(res.SMS.Outcome)),
		)
	}
}

func (s *Scheduler) retry(ctx context.Context, row entity.Scheduled, cause error, logger *zap.Logger) {
	if err := s.schedules.RecordAttempt(ctx, row.ID, cause.Error()); err != nil {
		logger.Error("record attempt", zap.Error(err))
	}
	attempts := row.Attempts + 1
	if attempts >= maxFireAttempts {
		logger.Error("schedule left pending after repeated failures",
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		return
	}
	logger.Warn("scheduled notification failed, retrying", zap.Int("attempts", attempts), zap.Error(cause))
	s.arm(row.ID, s.now().Add(s.backoff*time.Duration(attempts)))
}
