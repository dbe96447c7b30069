// Package worker runs background jobs on a fixed set of goroutines fed by a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonathan/outreach-agent/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool errors
var (
	ErrQueueFull   = errors.New("worker queue is full")
	ErrPoolStopped = errors.New("worker pool is not running")
)

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config sizes a Pool.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns the pool size used by the service.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 64}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool executes submitted jobs on Config.Workers goroutines.
type Pool struct {
	cfg    Config
	queue  chan Job
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.RWMutex
	running bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a stopped pool. Call Start before submitting jobs.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Pool{
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("worker"),
	}
}

// Start launches the workers. Calling Start on a running pool is a no-op; a pool that
// was shut down can be started again.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.queue = make(chan Job, p.cfg.QueueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.group = &errgroup.Group{}
	queue := p.queue

	p.logger.Info("starting worker pool", zap.Int("workers", p.cfg.Workers), zap.Int("queue_size", p.cfg.QueueSize))
	for i := 0; i < p.cfg.Workers; i++ {
		p.group.Go(func() error {
			p.work(i, queue)
			return nil
		})
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs to finish. When
// ctx expires first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped",
			zap.Int64("completed", p.completed.Load()),
			zap.Int64("failed", p.failed.Load()),
		)
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	queued := len(p.queue)
	p.mu.RUnlock()
	return Stats{
		Queued:    queued,
		Running:   p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work(id int, queue <-chan Job) {
	for job := range queue {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	log := p.logger.With(zap.Int("worker", id), zap.String("job", job.Name))
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.Run(p.ctx)
	}()
	if err != nil {
		p.failed.Add(1)
		log.Error("job failed", zap.Error(err))
		return
	}
	p.completed.Add(1)
	log.Debug("job completed")
}
