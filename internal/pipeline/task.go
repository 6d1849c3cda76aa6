package pipeline

import (
	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
)

// Task holds the entries of one run and exposes them by verdict
type Task struct {
	Name    string
	RunID   string
	entries []*entry.Entry
}

// NewTask wraps the entries produced for one run of the named task
func NewTask(name, runID string, entries []*entry.Entry) *Task {
	return &Task{
		Name:    name,
		RunID:   runID,
		entries: entries,
	}
}

// Entries returns every entry regardless of verdict
func (t *Task) Entries() []*entry.Entry {
	return t.entries
}

// Accepted returns the accepted entries
func (t *Task) Accepted() []*entry.Entry {
	return t.with(entry.Accepted)
}

func (t *Task) Rejected() []*entry.Entry {
	return t.with(entry.Rejected)
}

func (t *Task) Undecided() []*entry.Entry {
	return t.with(entry.Undecided)
}

// Failed returns the failed entries
func (t *Task) Failed() []*entry.Entry {
	return t.with(entry.Failed)
}

// Verdicts snapshots the current verdicts. Failed entries are left out, so
// their jobs are neither deleted nor released.
func (t *Task) Verdicts() queue.Verdicts {
	return queue.Verdicts{
		Accepted:  t.Accepted(),
		Rejected:  t.Rejected(),
		Undecided: t.Undecided(),
	}
}

func (t *Task) with(state entry.State) []*entry.Entry {
	var out []*entry.Entry
	for _, e := range t.entries {
		if e.State() == state {
			out = append(out, e)
		}
	}
	return out
}
