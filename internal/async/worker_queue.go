package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// WorkerQueue runs tasks in FIFO order on a single goroutine.
type WorkerQueue struct {
	handle  Handler
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	// done is closed by Shutdown; senders blocked on a full buffer watch it.
	// ch is closed only after every sender has left.
	done    chan struct{}
	senders sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

type Option func(*WorkerQueue)

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWorkerQueue(handle Handler, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		handle:  handle,
		logger:  logger,
		timeout: 15 * time.Minute,
		now:     time.Now,
		ch:      make(chan Task, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.logger.Info("queue.worker.started")
			for t := range q.ch {
				q.run(t)
			}
			q.logger.Info("queue.worker.stopped")
		}()
	})
}

func (q *WorkerQueue) run(t Task) {
	start := time.Now()
	ctx := common.WithUser(context.Background(), t.User)
	if t.RunID != "" {
		ctx = common.WithRunID(ctx, t.RunID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.task.panic", "job_id", t.JobID, "kind", t.Kind, "panic", r)
		}
	}()

	if err := q.handle(ctx, t); err != nil {
		q.logger.Error("queue.task.failed",
			"job_id", t.JobID, "kind", t.Kind, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	q.logger.Info("queue.task.done",
		"job_id", t.JobID, "kind", t.Kind,
		"wait_ms", start.Sub(t.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue blocks when the buffer is full until a slot frees up, ctx ends or
// the queue shuts down.
func (q *WorkerQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", t.JobID)
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = q.now()
	}
	select {
	case q.ch <- t:
		q.logger.Info("queue.task.enqueued", "job_id", t.JobID, "kind", t.Kind, "depth", len(q.ch))
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", t.JobID)
	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the number of tasks waiting for the worker.
func (q *WorkerQueue) Depth() int { return len(q.ch) }

// Shutdown stops accepting tasks and waits for the queued ones to finish or ctx to end.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
