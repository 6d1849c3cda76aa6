package entry

import (
	"fmt"
	"maps"
	"slices"
)

// State is the verdict the pipeline reached for an entry
type State int

const (
	Undecided State = iota
	Accepted
	Rejected
	Failed
)

func (s State) String() string {
	switch s {
	case Undecided:
		return "undecided"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is one unit of work flowing through a task run
type Entry struct {
	fields map[string]any
	state  State
	reason string
	err    error
}

// New creates an empty undecided entry
func New() *Entry {
	return &Entry{fields: make(map[string]any)}
}

// Deserialize rebuilds an entry from its flat key/value form
func Deserialize(data map[string]any) *Entry {
	e := New()
	for k, v := range data {
		e.fields[k] = v
	}
	return e
}

// Serialize returns the flat key/value form of the entry. Only the fields are
// serialized, the verdict belongs to the running task.
func (e *Entry) Serialize() map[string]any {
	return maps.Clone(e.fields)
}

// Get returns the raw field value and whether it is set
func (e *Entry) Get(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// GetString returns the field as a string, or "" if missing or not a string
func (e *Entry) GetString(key string) string {
	s, _ := e.fields[key].(string)
	return s
}

// Set stores value under key, replacing any previous value
func (e *Entry) Set(key string, value any) {
	e.fields[key] = value
}

// Has reports whether key is set, even to nil
func (e *Entry) Has(key string) bool {
	_, ok := e.fields[key]
	return ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (e *Entry) Delete(key string) {
	delete(e.fields, key)
}

// Keys returns the field names in sorted order
func (e *Entry) Keys() []string {
	return slices.Sorted(maps.Keys(e.fields))
}

// Title is a convenience accessor used in log lines
func (e *Entry) Title() string {
	return e.GetString("title")
}

// Accept marks the entry accepted with reason. Failed entries stay failed.
func (e *Entry) Accept(reason string) {
	if e.state == Failed {
		return
	}
	e.state = Accepted
	e.reason = reason
}

// Reject marks the entry rejected with reason. Failed entries stay failed.
func (e *Entry) Reject(reason string) {
	if e.state == Failed {
		return
	}
	e.state = Rejected
	e.reason = reason
}

// Fail marks the entry failed. A failed entry keeps that state for the rest of
// the run and is excluded from the accepted, rejected and undecided views.
func (e *Entry) Fail(err error) {
	e.state = Failed
	e.err = err
	if err != nil {
		e.reason = err.Error()
	}
}

// State returns the current verdict
func (e *Entry) State() State {
	return e.state
}

// Reason returns the text given with the last verdict
func (e *Entry) Reason() string {
	return e.reason
}

// Err returns the error passed to Fail, if any
func (e *Entry) Err() error {
	return e.err
}

// Verdict shortcuts
func (e *Entry) IsAccepted() bool  { return e.state == Accepted }
func (e *Entry) IsRejected() bool  { return e.state == Rejected }
func (e *Entry) IsUndecided() bool { return e.state == Undecided }
func (e *Entry) IsFailed() bool    { return e.state == Failed }
