package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	casebridge_errors "casebridge/pkg/errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskDeliver  = "notification:deliver"
	DefaultQueue = "notifications"
)

// AsynqDispatcher enqueues deliveries on Redis so they survive a restart.
type AsynqDispatcher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	logger   *zap.Logger
}

func NewAsynqDispatcher(opt asynq.RedisClientOpt, queue string, logger *zap.Logger) *AsynqDispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsynqDispatcher{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: 5,
		logger:   logger.With(zap.String("component", "dispatcher"), zap.String("queue", queue)),
	}
}

func NewDeliverTask(req Request) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return asynq.NewTask(TaskDeliver, payload), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, req Request) {
	task, err := NewDeliverTask(req)
	if err != nil {
		d.logger.Error("build task", zap.Error(err))
		return
	}
	info, err := d.client.EnqueueContext(context.WithoutCancel(ctx), task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
	)
	if err != nil {
		d.logger.Error("enqueue notification",
			zap.String("user_id", req.UserID.String()),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("notification enqueued", zap.String("task_id", info.ID))
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// AsynqWorker consumes notification:deliver tasks and runs them through a Notifier.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewAsynqWorker(opt asynq.RedisClientOpt, concurrency int, queue string, n Notifier, logger *zap.Logger) *AsynqWorker {
	if queue == "" {
		queue = DefaultQueue
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "notification_worker"))

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", zap.String("task", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeliver, HandleDeliverTask(n))
	return &AsynqWorker{server: srv, mux: mux, logger: logger}
}

// HandleDeliverTask decodes the request and delivers it. Malformed payloads are not retried.
func HandleDeliverTask(n Notifier) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var req Request
		if err := json.Unmarshal(t.Payload(), &req); err != nil {
			return fmt.Errorf("decode %s: %v: %w", TaskDeliver, err, asynq.SkipRetry)
		}
		if _, err := n.Notify(ctx, req); err != nil {
			if errors.Is(err, casebridge_errors.ErrInvalidInput) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

func (w *AsynqWorker) Start() error {
	return w.server.Start(w.mux)
}

func (w *AsynqWorker) Shutdown() {
	w.server.Shutdown()
}
