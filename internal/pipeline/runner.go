package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/beanstalk-bridge/internal/config"
	"github.com/cuongbtq/beanstalk-bridge/internal/history"
	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
)

// ErrUnknownTask is returned when a run is requested for a task that is not
// configured
var ErrUnknownTask = errors.New("unknown task")

// Recorder keeps the history of task runs
type Recorder interface {
	CreateRun(ctx context.Context, run *history.Run) error
	StartRun(ctx context.Context, run *history.Run) error
	FinishRun(ctx context.Context, run *history.Run) error
}

// RunnerConfig holds the runner dependencies. Publisher and Recorder are
// optional.
type RunnerConfig struct {
	Tasks     map[string]config.TaskConfig
	Dial      queue.Dialer
	Publisher Publisher
	Recorder  Recorder
	Metrics   *queue.Metrics
	Logger    *slog.Logger
}

// Runner executes task runs: reserve, filter, output, acknowledge
type Runner struct {
	tasks     map[string]config.TaskConfig
	dial      queue.Dialer
	publisher Publisher
	recorder  Recorder
	metrics   *queue.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type namedConsumer struct {
	name     string
	consumer queue.Consumer
}

// NewRunner requires Dial and Logger in cfg
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("%w: beanstalkd dialer is required", queue.ErrMissingDependency)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", queue.ErrMissingDependency)
	}

	return &Runner{
		tasks:     cfg.Tasks,
		dial:      cfg.Dial,
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// TaskNames returns the configured tasks in sorted order
func (r *Runner) TaskNames() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prepare creates a pending run for the task
func (r *Runner) Prepare(ctx context.Context, task string) (*history.Run, error) {
	if _, ok := r.tasks[task]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	run := &history.Run{
		RunID:     uuid.NewString(),
		Task:      task,
		Status:    history.RunStatusPending,
		CreatedAt: r.now().UTC(),
	}

	if r.recorder != nil {
		if err := r.recorder.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}

	return run, nil
}

// Run prepares and executes a run in the calling goroutine
func (r *Runner) Run(ctx context.Context, task string) (*history.Run, error) {
	run, err := r.Prepare(ctx, task)
	if err != nil {
		return nil, err
	}
	return run, r.Execute(ctx, run)
}

// Abandon finishes a prepared run that will never execute, marking it FAILED
// with the reason
func (r *Runner) Abandon(ctx context.Context, run *history.Run, reason error) {
	finished := r.now().UTC()
	run.Status = history.RunStatusFailed
	run.Error = reason.Error()
	run.FinishedAt = &finished

	logger := r.logger.With(
		slog.String("task", run.Task),
		slog.String("run_id", run.RunID),
	)
	logger.Warn("Task run abandoned", slog.Any("reason", reason))

	r.record(context.WithoutCancel(ctx), logger, "finish", run)
}

// Execute runs a prepared run to completion. Queue connection failures end
// the run with status WARNING instead of an error.
func (r *Runner) Execute(ctx context.Context, run *history.Run) error {
	taskCfg, ok := r.tasks[run.Task]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, run.Task)
	}

	logger := r.logger.With(
		slog.String("task", run.Task),
		slog.String("run_id", run.RunID),
	)

	started := r.now().UTC()
	run.Status = history.RunStatusRunning
	run.StartedAt = &started
	r.record(ctx, logger, "start", run)

	logger.Info("Task run started")

	err := r.execute(ctx, logger, run, taskCfg)

	finished := r.now().UTC()
	run.FinishedAt = &finished
	switch {
	case err != nil:
		run.Status = history.RunStatusFailed
		run.Error = err.Error()
	case run.Warning != "":
		run.Status = history.RunStatusWarning
	default:
		run.Status = history.RunStatusSucceeded
	}

	// history is written even when the run context is done
	r.record(context.WithoutCancel(ctx), logger, "finish", run)

	logger.Info("Task run finished",
		slog.String("status", run.Status),
		slog.Int("produced", run.Produced),
		slog.Int("accepted", run.Accepted),
		slog.Int("rejected", run.Rejected),
		slog.Int("undecided", run.Undecided),
		slog.Int("failed", run.Failed),
		slog.Duration("duration", finished.Sub(started)),
	)

	return err
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, run *history.Run, cfg config.TaskConfig) error {
	filter, err := NewFilter(FilterRules{
		Accept:    cfg.Filter.Accept,
		Reject:    cfg.Filter.Reject,
		AcceptAll: cfg.Filter.AcceptAll,
	}, logger)
	if err != nil {
		return err
	}

	input, err := queue.NewInput(cfg.FromBeanstalkd.Queue(), r.dial, logger, r.metrics)
	if err != nil {
		return err
	}
	defer input.Close()

	var consumers []namedConsumer
	if cfg.Beanstalkd.Enabled {
		output, err := queue.NewOutput(cfg.Beanstalkd.Queue(), r.dial, logger, r.metrics)
		if err != nil {
			return err
		}
		consumers = append(consumers, namedConsumer{name: "beanstalkd", consumer: output})
	}
	if cfg.RabbitMQ {
		if r.publisher == nil {
			return fmt.Errorf("%w: rabbitmq publisher is required", queue.ErrMissingDependency)
		}
		consumers = append(consumers, namedConsumer{name: "rabbitmq", consumer: NewMirror(r.publisher, logger)})
	}

	entries, inputErr := input.ProduceEntries(ctx)
	if inputErr != nil {
		// reservations went back to ready when the session closed; jobs
		// deleted on reserve exist only as these entries now
		if !cfg.FromBeanstalkd.DeleteOnReserve {
			entries = nil
		}
		if errors.Is(inputErr, queue.ErrConnection) {
			r.warn(logger, run, "from_beanstalkd", inputErr)
			inputErr = nil
		}
	}

	task := NewTask(run.Task, run.RunID, entries)
	filter.Apply(task)

	// outputs go first so entries they fail keep their jobs for a later run
	for _, c := range consumers {
		if err := c.consumer.ConsumeEntries(ctx, task.Verdicts()); err != nil {
			r.warn(logger, run, c.name, err)
		}
	}

	if err := input.ConsumeEntries(ctx, task.Verdicts()); err != nil {
		r.warn(logger, run, "from_beanstalkd", err)
	}

	run.Produced = len(task.Entries())
	run.Accepted = len(task.Accepted())
	run.Rejected = len(task.Rejected())
	run.Undecided = len(task.Undecided())
	run.Failed = len(task.Failed())

	if inputErr != nil {
		return fmt.Errorf("from_beanstalkd: %w", inputErr)
	}
	return nil
}

func (r *Runner) warn(logger *slog.Logger, run *history.Run, plugin string, err error) {
	logger.Warn("Plugin warning",
		slog.String("plugin", plugin),
		slog.Any("error", err),
	)

	msg := plugin + ": " + err.Error()
	if run.Warning == "" {
		run.Warning = msg
		return
	}
	run.Warning = strings.Join([]string{run.Warning, msg}, "; ")
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, op string, run *history.Run) {
	if r.recorder == nil {
		return
	}

	var err error
	switch op {
	case "start":
		err = r.recorder.StartRun(ctx, run)
	case "finish":
		err = r.recorder.FinishRun(ctx, run)
	}
	if err != nil {
		logger.Error("Failed to record run",
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
}
