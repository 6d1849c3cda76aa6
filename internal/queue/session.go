package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/shared/beanstalkd"
)

// Session is one connection to a beanstalkd server. A session is driven by a
// single goroutine and must be closed on every exit path.
type Session interface {
	Use(tube string) error
	Watch(tube string) error
	// Reserve returns a nil job and a nil error when timeout passes without a job
	Reserve(timeout time.Duration) (*beanstalkd.Job, error)
	Peek(id uint64) (*beanstalkd.Job, error)
	Delete(id uint64) error
	Release(id uint64, delay time.Duration) error
	Put(body []byte) (uint64, error)
	Close() error
}

// Dialer opens a session for a tube configuration
type Dialer func(ctx context.Context, cfg Config) (Session, error)

// DialOptions tune how NewBeanstalkdDialer connects
type DialOptions struct {
	DialTimeout   time.Duration
	RetryAttempts int
	RetryInterval time.Duration
}

// NewBeanstalkdDialer returns a Dialer backed by shared/beanstalkd
func NewBeanstalkdDialer(logger *slog.Logger, opts DialOptions) Dialer {
	return func(ctx context.Context, cfg Config) (Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		client, err := beanstalkd.NewClient(&beanstalkd.Config{
			Host:          cfg.Host,
			Port:          cfg.Port,
			DialTimeout:   opts.DialTimeout,
			RetryAttempts: opts.RetryAttempts,
			RetryInterval: opts.RetryInterval,
			Priority:      cfg.Priority,
			TTR:           cfg.TTR,
		}, logger)
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}
