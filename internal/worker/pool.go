package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (p *Pool) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	p.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", p.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	logger := p.logger.With(slog.Int("worker_num", workerNum))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-p.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case run := <-p.runs:
			p.execute(ctx, logger, run)
		}
	}
}

func (p *Pool) execute(ctx context.Context, logger *slog.Logger, run *history.Run) {
	runCtx := ctx
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	logger.Info("Worker received run",
		slog.String("run_id", run.RunID),
		slog.String("task", run.Task),
	)

	// the run outcome is already in the history, the error is only logged
	if err := p.executor.Execute(runCtx, run); err != nil {
		logger.Error("Run failed",
			slog.String("run_id", run.RunID),
			slog.String("task", run.Task),
			slog.Any("error", err),
		)
	}
}
