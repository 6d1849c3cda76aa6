package queue

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/beanstalk-bridge/shared/beanstalkd"
)

var (
	// ErrConnection is returned when the queue server is unreachable. It is
	// fatal to the task run.
	ErrConnection = beanstalkd.ErrConnection

	// ErrJobGone is returned when a job was already deleted, expired or taken
	// by another consumer. Callers log it and move on.
	ErrJobGone = beanstalkd.ErrJobGone

	// ErrMissingDependency is returned by constructors when a required
	// collaborator was not supplied
	ErrMissingDependency = errors.New("missing dependency")

	// ErrInvalidConfig is returned when a tube configuration cannot be used
	ErrInvalidConfig = errors.New("invalid beanstalkd config")
)

// DecodingError reports a job payload that could not be turned into an entry
type DecodingError struct {
	JobID uint64
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("could not decode job %d: %v", e.JobID, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// EncodingError reports an entry that could not be serialized to a payload
type EncodingError struct {
	Title string
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("could not encode entry: %v", e.Err)
	}
	return fmt.Sprintf("could not encode entry %q: %v", e.Title, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// IsJobGone reports whether err means the job no longer exists
func IsJobGone(err error) bool {
	return errors.Is(err, ErrJobGone)
}
