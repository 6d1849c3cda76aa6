package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

// RunStore reads the run history
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*history.Run, error)
	ListRuns(ctx context.Context, filter history.RunFilter) ([]history.Run, error)
}

// Scheduler queues task runs. *worker.Pool implements it.
type Scheduler interface {
	Schedule(ctx context.Context, task string) (*history.Run, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     RunStore
	Scheduler Scheduler
	Tasks     []string
}

// RunHandler handles task run HTTP requests
type RunHandler struct {
	logger    *slog.Logger
	store     RunStore
	scheduler Scheduler
	tasks     []string
}

// NewRunHandler creates a new RunHandler instance
func NewRunHandler(deps *Dependencies) *RunHandler {
	return &RunHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		tasks:     deps.Tasks,
	}
}
