// Package jobs runs deferred storage cleanup with bounded retries.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("cleanup queue full")

// ErrQueueStopped is returned by Enqueue before Start or after Stop.
var ErrQueueStopped = errors.New("cleanup queue not running")

// Task names a stored object that must be removed.
type Task struct {
	Key      string
	Reason   string
	Attempt  int
	Enqueued time.Time
}

// Handler removes the object named by a task.
type Handler func(context.Context, Task) error

// Config configures worker pool behaviour.
type Config struct {
	Workers     int
	BufferSize  int
	MaxAttempts int
	Backoff     time.Duration
	Logger      *zap.Logger
}

// Queue dispatches cleanup tasks to a fixed set of goroutines. Failed tasks
// are retried with a doubling delay until MaxAttempts is reached.
type Queue struct {
	name        string
	handler     Handler
	workers     int
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger

	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue builds a queue. Call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:        name,
		handler:     handler,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
		tasks:       make(chan Task, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.running = true
	q.logger.Info("cleanup queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels pending retries and waits for workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("cleanup queue stopped", zap.String("queue", q.name), zap.Int("dropped", len(q.tasks)))
}

// Enqueue schedules a task without blocking the caller.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrQueueStopped
	}
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now().UTC()
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			task.Attempt++
			if err := q.handler(q.ctx, task); err != nil {
				q.retry(task, err)
				continue
			}
			q.logger.Info("orphaned object removed",
				zap.String("queue", q.name),
				zap.String("key", task.Key),
				zap.Int("attempt", task.Attempt))
		}
	}
}

func (q *Queue) retry(task Task, err error) {
	if task.Attempt >= q.maxAttempts {
		q.logger.Error("cleanup gave up",
			zap.String("queue", q.name),
			zap.String("key", task.Key),
			zap.String("reason", task.Reason),
			zap.Int("attempts", task.Attempt),
			zap.Error(err))
		return
	}
	delay := q.backoff << (task.Attempt - 1)
	q.logger.Warn("cleanup failed, retrying",
		zap.String("queue", q.name),
		zap.String("key", task.Key),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(task); err != nil {
				q.logger.Error("failed to requeue cleanup", zap.String("key", task.Key), zap.Error(err))
			}
		}
	}()
}
