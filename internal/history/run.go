package history

import (
	"errors"
	"time"
)

// Run status constants
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusWarning   = "WARNING"
	RunStatusFailed    = "FAILED"
)

var (
	// ErrRunNotFound is returned when a run cannot be found in the database
	ErrRunNotFound = errors.New("run not found")
)

// Run is one execution of a task and the verdict counts it ended with
type Run struct {
	RunID      string     `db:"run_id"`
	Task       string     `db:"task"`
	Status     string     `db:"status"`
	Produced   int        `db:"produced"`
	Accepted   int        `db:"accepted"`
	Rejected   int        `db:"rejected"`
	Undecided  int        `db:"undecided"`
	Failed     int        `db:"failed"`
	Warning    string     `db:"warning"`
	Error      string     `db:"error_message"`
	CreatedAt  time.Time  `db:"created_at"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// IsTerminal reports whether the run will not change anymore
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case RunStatusSucceeded, RunStatusWarning, RunStatusFailed:
		return true
	default:
		return false
	}
}
