package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

// Job is one file through the pipeline. Errors returned by Run are logged;
// callers record outcomes themselves.
type Job struct {
	ID   string
	Path string
	Run  func(ctx context.Context) error

	enqueued time.Time
}

// Pool runs jobs on a fixed number of workers. Each job gets its own timeout
// detached from the caller's cancellation, so a job that started always
// finishes or times out instead of being cut off mid-write. Once the caller's
// context ends, queued jobs that have not started are dropped.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration
	parent  context.Context
	base    context.Context
	dropped atomic.Int64

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool starts the workers. Values carried by ctx (run id, logger fields) reach
// every job. Cancelling ctx stops queued jobs from starting but does not reach
// jobs already running.
func NewPool(ctx context.Context, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		parent:  ctx,
		base:    context.WithoutCancel(ctx),
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("pool.worker.start", "worker_id", workerID)

				for job := range p.ch {
					p.run(workerID, job)
				}

				p.logger.Debug("pool.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, job Job) {
	if err := p.parent.Err(); err != nil {
		p.dropped.Add(1)
		p.logger.Debug("pool.job.dropped", "worker_id", workerID, "job_id", job.ID, "path", job.Path, "reason", err)
		return
	}
	ctx, cancel := context.WithTimeout(p.base, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool.job.panic", "worker_id", workerID, "job_id", job.ID, "path", job.Path, "panic", r)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		p.logger.Error("pool.job.failed", "worker_id", workerID, "job_id", job.ID, "path", job.Path, "error", err)
		return
	}
	p.logger.Debug("pool.job.done", "worker_id", workerID, "job_id", job.ID,
		"waited_ms", start.Sub(job.enqueued).Milliseconds(), "duration_ms", time.Since(start).Milliseconds())
}

// Enqueue blocks while the queue is full. It returns ctx.Err() if ctx ends first
// and ErrClosed after Shutdown.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("pool.enqueue.closed", "job_id", job.ID)
		return ErrClosed
	}
	job.enqueued = time.Now()
	select {
	case p.ch <- job:
		return nil
	default:
	}
	p.logger.Debug("pool.enqueue.backpressure", "job_id", job.ID)
	select {
	case p.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many queued jobs never started because the pool's context ended.
func (p *Pool) Dropped() int { return int(p.dropped.Load()) }

// Shutdown stops accepting jobs and waits for queued ones to finish or for ctx to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("pool.shutdown.interrupted")
	case <-done:
		p.logger.Debug("pool.shutdown.done")
	}
}

