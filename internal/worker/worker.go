package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

// Executor prepares and executes task runs. *pipeline.Runner implements it.
type Executor interface {
	Prepare(ctx context.Context, task string) (*history.Run, error)
	Execute(ctx context.Context, run *history.Run) error
	// Abandon finishes a prepared run the pool will never execute
	Abandon(ctx context.Context, run *history.Run, reason error)
}

// Config holds worker pool configuration
type Config struct {
	Logger      *slog.Logger
	Executor    Executor
	Concurrency int
	QueueSize   int
	RunTimeout  time.Duration
}

// Pool executes task runs on a fixed number of goroutines
type Pool struct {
	logger      *slog.Logger
	executor    Executor
	concurrency int
	runTimeout  time.Duration

	mu      sync.RWMutex
	runs    chan *history.Run
	started bool
	stopped bool

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewPool creates a new worker pool instance
func NewPool(cfg *Config) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	return &Pool{
		logger:      cfg.Logger,
		executor:    cfg.Executor,
		concurrency: concurrency,
		runTimeout:  cfg.RunTimeout,
		runs:        make(chan *history.Run, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the worker goroutines. They stop when ctx is canceled or Stop
// is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("Starting worker pool",
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", cap(p.runs)),
		slog.Duration("run_timeout", p.runTimeout),
	)

	p.spawnWorkerPool(ctx)
}

// Schedule creates a pending run for the task and queues it. A run that was
// prepared but could not be queued is abandoned so it does not stay PENDING.
func (p *Pool) Schedule(ctx context.Context, task string) (*history.Run, error) {
	if err := p.accepting(); err != nil {
		return nil, err
	}

	run, err := p.executor.Prepare(ctx, task)
	if err != nil {
		return nil, err
	}

	if err := p.Submit(run); err != nil {
		p.executor.Abandon(ctx, run, err)
		return nil, err
	}
	return run, nil
}

// Submit queues a prepared run without blocking
func (p *Pool) Submit(run *history.Run) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.acceptingLocked(); err != nil {
		return err
	}

	select {
	case p.runs <- run:
		p.logger.Debug("Run queued",
			slog.String("run_id", run.RunID),
			slog.String("task", run.Task),
		)
		return nil
	default:
		return fmt.Errorf("%w: run %s of task %s", ErrQueueFull, run.RunID, run.Task)
	}
}

// Stop gracefully stops the pool. Running runs finish; queued runs that no
// worker picked up are abandoned.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopChan)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool...")
	p.wg.Wait()

	dropped := 0
	for {
		select {
		case run := <-p.runs:
			p.executor.Abandon(context.Background(), run, ErrPoolStopped)
			dropped++
			continue
		default:
		}
		break
	}

	p.logger.Info("Worker pool stopped",
		slog.Int("dropped_runs", dropped),
	)
}

func (p *Pool) accepting() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.acceptingLocked()
}

func (p *Pool) acceptingLocked() error {
	if p.stopped {
		return ErrPoolStopped
	}
	if !p.started {
		return ErrPoolNotStarted
	}
	return nil
}
