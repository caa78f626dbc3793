package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when jobs are offered to a queue without workers.
	ErrNotStarted = errors.New("queue not started")
	// ErrFull is returned by TryEnqueue when the buffer has no room.
	ErrFull = errors.New("queue full")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// DropHandler is called once a job has exhausted its retries.
type DropHandler func(Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	OnDrop        DropHandler
	Logger        *zap.Logger
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pending   int    `json:"pending"`
	Succeeded uint64 `json:"succeeded"`
	Retried   uint64 `json:"retried"`
	Dropped   uint64 `json:"dropped"`
}

// Queue is an in-memory job dispatcher backed by goroutines. Delivery is at
// least once per Enqueue within the lifetime of the process.
type Queue struct {
	name    string
	handler Handler

	workers       int
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	onDrop        DropHandler
	logger        *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	succeeded uint64
	retried   uint64
	dropped   uint64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:          name,
		handler:       handler,
		workers:       cfg.Workers,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		onDrop:        cfg.OnDrop,
		logger:        cfg.Logger,
		jobs:          make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call more than once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit. Jobs still buffered are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.String("queue", q.name), zap.Int("discarded", len(q.jobs)))
}

// Enqueue pushes a job onto the queue, blocking while the buffer is full.
// Never call it from the queue's own handler: with every worker blocked on a
// full buffer nothing is left to drain it. Use TryEnqueue there.
func (q *Queue) Enqueue(job Job) error {
	ctx, err := q.prepare(&job)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// TryEnqueue pushes a job without waiting and returns ErrFull when the
// buffer has no room.
func (q *Queue) TryEnqueue(job Job) error {
	ctx, err := q.prepare(&job)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrFull)
	}
}

func (q *Queue) prepare(job *Job) (context.Context, error) {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil, fmt.Errorf("queue %s: %w", q.name, ErrNotStarted)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	return ctx, nil
}

// Stats reports queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Succeeded: atomic.LoadUint64(&q.succeeded),
		Retried:   atomic.LoadUint64(&q.retried),
		Dropped:   atomic.LoadUint64(&q.dropped),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(job, err)
				continue
			}
			atomic.AddUint64(&q.succeeded, 1)
		}
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.maxRetryDelay {
			return q.maxRetryDelay
		}
	}
	return delay
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		atomic.AddUint64(&q.dropped, 1)
		q.logger.Error("job exceeded retries",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Error(err))
		if q.onDrop != nil {
			q.onDrop(job, err)
		}
		return
	}
	atomic.AddUint64(&q.retried, 1)
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying",
		zap.String("queue", q.name),
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err))

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("queue", q.name), zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
