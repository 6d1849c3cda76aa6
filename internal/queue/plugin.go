package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
)

// Producer feeds entries into a task run
type Producer interface {
	ProduceEntries(ctx context.Context) ([]*entry.Entry, error)
}

// Consumer receives the verdicts of a task run
type Consumer interface {
	ConsumeEntries(ctx context.Context, v Verdicts) error
}

var (
	_ Producer = (*Input)(nil)
	_ Consumer = (*Input)(nil)
	_ Consumer = (*Output)(nil)
)

// Input reserves jobs from a tube and, in the deferred variant, settles them
// after the pipeline has decided. An Input serves a single task run and is not
// safe for concurrent use.
//
// Beanstalkd only lets the reserving connection release a job, and closing a
// connection makes its reservations ready again, so the deferred variant keeps
// the session from ProduceEntries open until ConsumeEntries or Close.
type Input struct {
	config   Config
	dial     Dialer
	logger   *slog.Logger
	reserver *Reserver
	resolver *Resolver

	held Session
}

// NewInput applies the defaults to cfg and validates it. metrics may be nil.
func NewInput(cfg Config, dial Dialer, logger *slog.Logger, metrics *Metrics) (*Input, error) {
	if dial == nil {
		return nil, fmt.Errorf("%w: beanstalkd dialer is required", ErrMissingDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrMissingDependency)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Input{
		config:   cfg,
		dial:     dial,
		logger:   logger,
		reserver: NewReserver(cfg, logger, metrics),
		resolver: NewResolver(cfg, logger, metrics),
	}, nil
}

// ProduceEntries runs one reservation batch
func (in *Input) ProduceEntries(ctx context.Context) ([]*entry.Entry, error) {
	if in.held != nil {
		return nil, fmt.Errorf("previous batch on tube %s was not acknowledged", in.config.Tube)
	}

	sess, err := in.dial(ctx, in.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to beanstalkd input %s: %w", in.config.Addr(), err)
	}

	if err := sess.Watch(in.config.Tube); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to watch tube %s: %w", in.config.Tube, err)
	}

	entries, err := in.reserver.Reserve(ctx, sess)

	if err == nil && !in.config.DeleteOnReserve && len(entries) > 0 {
		in.held = sess
	} else {
		sess.Close()
	}

	in.logger.Info("Entries reserved from beanstalkd",
		slog.String("tube", in.config.Tube),
		slog.Int("entries", len(entries)),
		slog.Bool("delete_on_reserve", in.config.DeleteOnReserve),
	)

	return entries, err
}

// ConsumeEntries deletes the jobs of accepted and rejected entries and releases
// the jobs of undecided ones. It closes the session in every case.
func (in *Input) ConsumeEntries(ctx context.Context, v Verdicts) error {
	sess := in.held
	in.held = nil

	if sess == nil {
		// nothing reserved by this run; entries tagged elsewhere still get resolved
		if in.config.DeleteOnReserve || !v.HasJobs() {
			return nil
		}
		var err error
		sess, err = in.dial(ctx, in.config)
		if err != nil {
			return fmt.Errorf("failed to connect to beanstalkd input %s: %w", in.config.Addr(), err)
		}
	}
	defer sess.Close()

	return in.resolver.Resolve(sess, v)
}

// Close gives up a session still held from ProduceEntries. Reserved jobs
// become ready again on the server.
func (in *Input) Close() error {
	if in.held == nil {
		return nil
	}
	sess := in.held
	in.held = nil

	in.logger.Warn("Closing beanstalkd input without acknowledgment",
		slog.String("tube", in.config.Tube),
	)
	return sess.Close()
}
