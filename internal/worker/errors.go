package worker

import "errors"

var (
	// ErrQueueFull is returned when every worker is busy and the run queue
	// has no free slot
	ErrQueueFull = errors.New("run queue is full")

	// ErrPoolStopped is returned when a run is submitted after Stop
	ErrPoolStopped = errors.New("worker pool is stopped")

	// ErrPoolNotStarted is returned when a run is submitted before Start
	ErrPoolNotStarted = errors.New("worker pool is not started")
)
