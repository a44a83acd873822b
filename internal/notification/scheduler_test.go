package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	entity "casebridge/internal/domain/notification"
	"casebridge/internal/repository"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"
)

func newScheduler(t *testing.T, h *harness) *Scheduler {
	t.Helper()
	s := NewScheduler(h.store, h.orch, nil)
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduleNowIsImmediate(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypeAppointmentReminder), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if id != Immediate {
		t.Fatalf("id = %q, want %q", id, Immediate)
	}
	if count, _ := h.orch.UnreadCount(ctx, h.user); count != 1 {
		t.Fatalf("in-app rows = %d, want 1 before Schedule returns", count)
	}
	pending, _ := h.store.Schedules.ListPending(ctx, 0)
	if len(pending) != 0 {
		t.Errorf("immediate delivery persisted %d schedules", len(pending))
	}
}

func TestScheduledNotificationFires(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypeAppointmentReminder), time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	scheduleID, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("schedule id %q: %v", id, err)
	}

	waitFor(t, "delivery", func() bool {
		row, err := h.store.Schedules.GetByID(ctx, scheduleID)
		return err == nil && row.Status == entity.ScheduleDelivered
	})
	items, _ := h.orch.ListNotifications(ctx, h.user, false, 0, 0)
	if len(items) != 1 || !items[0].ScheduleID.Valid || items[0].ScheduleID.UUID != scheduleID {
		t.Fatalf("notifications = %+v", items)
	}
}

func TestDoubleFirePersistsOneRow(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypeAppointmentReminder), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	scheduleID := uuid.MustParse(id)
	s.disarm(scheduleID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fire(ctx, scheduleID)
		}()
	}
	wg.Wait()

	// Simulate a crash after delivery but before the status update.
	if ok, err := h.store.Schedules.Transition(ctx, scheduleID, entity.ScheduleDelivered, entity.SchedulePending, time.Now()); err != nil || !ok {
		t.Fatalf("reset to pending: %v %v", ok, err)
	}
	s.fire(ctx, scheduleID)

	if count, _ := h.orch.UnreadCount(ctx, h.user); count != 1 {
		t.Fatalf("in-app rows = %d, want 1", count)
	}
	row, _ := h.store.Schedules.GetByID(ctx, scheduleID)
	if row.Status != entity.ScheduleDelivered {
		t.Errorf("status = %s", row.Status)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypePaymentDue), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	scheduleID := uuid.MustParse(id)

	if err := s.Cancel(ctx, scheduleID); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, scheduleID); !errors.Is(err, casebridge_errors.ErrInvalidState) {
		t.Errorf("second cancel err = %v", err)
	}
	if err := s.Cancel(ctx, uuid.New()); !errors.Is(err, casebridge_errors.ErrNotFound) {
		t.Errorf("unknown cancel err = %v", err)
	}
	s.mu.Lock()
	_, armed := s.timers[scheduleID]
	s.mu.Unlock()
	if armed {
		t.Error("cancelled schedule still armed")
	}

	s.fire(ctx, scheduleID)
	if count, _ := h.orch.UnreadCount(ctx, h.user); count != 0 {
		t.Errorf("cancelled schedule delivered %d rows", count)
	}
}

func TestCancelForUserChecksOwner(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypeCaseApproved), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	scheduleID := uuid.MustParse(id)

	if err := s.CancelForUser(ctx, scheduleID, uuid.New()); !errors.Is(err, casebridge_errors.ErrNotAuthorized) {
		t.Fatalf("foreign cancel err = %v", err)
	}
	row, _ := h.store.Schedules.GetByID(ctx, scheduleID)
	if row.Status != entity.SchedulePending {
		t.Fatalf("status after foreign cancel = %s", row.Status)
	}
	if err := s.CancelForUser(ctx, scheduleID, h.user); err != nil {
		t.Fatal(err)
	}
}

func TestCancelWhileFiring(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)
	ctx := context.Background()

	id, err := s.Schedule(ctx, h.request(entity.TypeAppointmentReminder), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	scheduleID := uuid.MustParse(id)

	s.mu.Lock()
	s.firing[scheduleID] = struct{}{}
	s.mu.Unlock()
	if err := s.Cancel(ctx, scheduleID); !errors.Is(err, casebridge_errors.ErrInvalidState) {
		t.Fatalf("cancel during delivery err = %v", err)
	}
	row, _ := h.store.Schedules.GetByID(ctx, scheduleID)
	if row.Status != entity.SchedulePending {
		t.Fatalf("status = %s, want PENDING", row.Status)
	}

	s.mu.Lock()
	delete(s.firing, scheduleID)
	s.mu.Unlock()
	if err := s.Cancel(ctx, scheduleID); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	_, busy := s.firing[scheduleID]
	s.mu.Unlock()
	if busy {
		t.Error("cancel left its claim behind")
	}
}

func TestScheduleRejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	s := newScheduler(t, h)

	req := h.request(entity.Type("VISA_LOTTERY"))
	if _, err := s.Schedule(context.Background(), req, time.Now().Add(time.Hour)); !errors.Is(err, casebridge_errors.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestRecoverFiresDueAndRearmsFuture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	insert := func(at time.Time) uuid.UUID {
		payload, _ := json.Marshal(h.request(entity.TypeAppointmentReminder))
		row := entity.Scheduled{
			ID:        uuid.New(),
			UserID:    h.user,
			Type:      entity.TypeAppointmentReminder,
			Payload:   datatypes.JSON(payload),
			DeliverAt: at,
			Status:    entity.SchedulePending,
			CreatedAt: time.Now(),
		}
		if err := h.store.Schedules.Create(ctx, &row); err != nil {
			t.Fatal(err)
		}
		return row.ID
	}
	due := insert(time.Now().Add(-time.Minute))
	future := insert(time.Now().Add(time.Hour))

	s := newScheduler(t, h)
	n, err := s.Recover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("recovered = %d, want 2", n)
	}

	row, _ := h.store.Schedules.GetByID(ctx, due)
	if row.Status != entity.ScheduleDelivered {
		t.Errorf("due schedule status = %s", row.Status)
	}
	s.mu.Lock()
	_, armed := s.timers[future]
	s.mu.Unlock()
	if !armed {
		t.Error("future schedule not re-armed")
	}
	if count, _ := h.orch.UnreadCount(ctx, h.user); count != 1 {
		t.Errorf("in-app rows = %d, want 1", count)
	}
}

type countingNotifier struct {
	calls atomic.Int64
}

func (c *countingNotifier) Notify(context.Context, Request) (Result, error) {
	c.calls.Add(1)
	return Result{}, nil
}

func TestPoolDispatcherDeliversEverything(t *testing.T) {
	n := &countingNotifier{}
	d := NewPoolDispatcher(n, 2, 4, nil)
	d.Start()

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 50; i++ {
		d.Dispatch(ctx, Request{UserID: uuid.New(), Type: entity.TypeNewMessage, Title: "x"})
	}
	cancel()
	d.Stop()

	if got := n.calls.Load(); got != 50 {
		t.Fatalf("delivered %d, want 50", got)
	}
}

func TestHandleDeliverTaskSkipsRetryOnBadPayload(t *testing.T) {
	n := &countingNotifier{}
	handler := HandleDeliverTask(n)

	err := handler(context.Background(), asynq.NewTask(TaskDeliver, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}

	task, err := NewDeliverTask(Request{UserID: uuid.New(), Type: entity.TypeNewMessage, Title: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if n.calls.Load() != 1 {
		t.Errorf("calls = %d", n.calls.Load())
	}
}

func TestPoolDispatcherDropsAfterStop(t *testing.T) {
	n := &countingNotifier{}
	d := NewPoolDispatcher(n, 1, 1, nil)
	d.Start()
	d.Stop()

	d.Dispatch(context.Background(), Request{UserID: uuid.New(), Type: entity.TypeNewMessage, Title: "late"})
	d.overflow.Wait()
	if got := n.calls.Load(); got != 0 {
		t.Fatalf("delivered %d after stop", got)
	}
}

type failingAttempts struct {
	repository.ScheduleRepository
}

func (failingAttempts) RecordAttempt(context.Context, uuid.UUID, string) error {
	return errors.New("database is locked")
}

func TestBadPayloadLogsRecordAttemptFailure(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zap.ErrorLevel)
	s := NewScheduler(h.store, h.orch, zap.New(core))
	t.Cleanup(s.Stop)
	s.schedules = failingAttempts{ScheduleRepository: h.store.Schedules}
	ctx := context.Background()

	row := entity.Scheduled{
		ID:        uuid.New(),
		UserID:    h.user,
		Type:      entity.TypePaymentDue,
		Payload:   datatypes.JSON(`{"userId": 42`),
		DeliverAt: time.Now().Add(-time.Minute).UTC(),
		Status:    entity.SchedulePending,
		CreatedAt: time.Now(),
	}
	if err := h.store.Schedules.Create(ctx, &row); err != nil {
		t.Fatal(err)
	}
	s.fire(ctx, row.ID)

	if n := logs.FilterMessage("record attempt").Len(); n != 1 {
		t.Fatalf("record attempt errors logged = %d, want 1", n)
	}
}
