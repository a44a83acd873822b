package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher hands a request off for delivery without blocking the caller on channel I/O.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request)
}

// InlineDispatcher delivers synchronously on the calling goroutine.
type InlineDispatcher struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewInlineDispatcher(n Notifier, logger *zap.Logger) *InlineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineDispatcher{notifier: n, logger: logger}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, req Request) {
	deliver(context.WithoutCancel(ctx), d.notifier, req, d.logger)
}

type job struct {
	ctx context.Context
	req Request
}

// PoolDispatcher runs deliveries on a fixed set of workers fed by a buffered queue.
// When the queue is full the request is delivered on its own goroutine.
// Requests arriving before Start or after Stop are dropped.
type PoolDispatcher struct {
	notifier Notifier
	queue    chan job
	workers  int
	logger   *zap.Logger

	mu       sync.RWMutex
	running  bool
	wg       sync.WaitGroup
	overflow sync.WaitGroup
}

func NewPoolDispatcher(n Notifier, workers, queueSize int, logger *zap.Logger) *PoolDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolDispatcher{
		notifier: n,
		queue:    make(chan job, queueSize),
		workers:  workers,
		logger:   logger.With(zap.String("component", "dispatcher")),
	}
}

func (d *PoolDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (d *PoolDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.overflow.Wait()
}

func (d *PoolDispatcher) Dispatch(ctx context.Context, req Request) {
	j := job{ctx: context.WithoutCancel(ctx), req: req}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		d.logger.Warn("dispatcher stopped, dropping notification",
			zap.String("type", string(req.Type)),
			zap.String("user_id", req.UserID.String()),
		)
		return
	}
	select {
	case d.queue <- j:
		return
	default:
		d.logger.Warn("dispatch queue full, delivering out of band",
			zap.String("type", string(req.Type)),
		)
	}
	d.overflow.Add(1)
	go func() {
		defer d.overflow.Done()
		deliver(j.ctx, d.notifier, j.req, d.logger)
	}()
}

func (d *PoolDispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		deliver(j.ctx, d.notifier, j.req, d.logger)
	}
}

func deliver(ctx context.Context, n Notifier, req Request, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notify panicked", zap.String("type", string(req.Type)), zap.Any("panic", r))
		}
	}()
	if _, err := n.Notify(ctx, req); err != nil {
		logger.Error("notify failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
}
