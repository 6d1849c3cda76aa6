package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
)

// Output puts accepted entries onto a tube as new jobs
type Output struct {
	config  Config
	dial    Dialer
	logger  *slog.Logger
	metrics *Metrics
}

// NewOutput checks its dependencies up front so a missing dialer fails at
// construction rather than on the first run
func NewOutput(cfg Config, dial Dialer, logger *slog.Logger, metrics *Metrics) (*Output, error) {
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

	return &Output{
		config:  cfg,
		dial:    dial,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// ConsumeEntries puts every accepted entry. An entry that fails to encode or
// put is marked failed and the rest of the batch carries on. Only a failure
// to connect is returned.
func (o *Output) ConsumeEntries(ctx context.Context, v Verdicts) error {
	if len(v.Accepted) == 0 {
		return nil
	}

	sess, err := o.dial(ctx, o.config)
	if err != nil {
		return fmt.Errorf("failed to connect to beanstalkd output %s: %w", o.config.Addr(), err)
	}
	defer sess.Close()

	if err := sess.Use(o.config.Tube); err != nil {
		return fmt.Errorf("failed to use tube %s: %w", o.config.Tube, err)
	}

	put := 0
	for _, e := range v.Accepted {
		if e.IsFailed() {
			continue
		}
		if err := o.put(sess, e); err != nil {
			e.Fail(err)
			continue
		}
		put++
	}

	o.logger.Info("Entries put to beanstalkd",
		slog.String("tube", o.config.Tube),
		slog.Int("put", put),
		slog.Int("accepted", len(v.Accepted)),
	)

	return nil
}

func (o *Output) put(sess Session, e *entry.Entry) error {
	// the source job id means nothing on the destination tube
	out := entry.Deserialize(e.Serialize())
	out.Delete(JobIDField)

	body, err := Encode(out)
	if err != nil {
		o.metrics.countFailure(o.config.Tube, failEncode)
		o.logger.Error("Could not encode entry",
			slog.String("title", e.Title()),
			slog.String("tube", o.config.Tube),
			slog.Any("error", err),
		)
		return err
	}

	id, err := sess.Put(body)
	if err != nil {
		o.metrics.countFailure(o.config.Tube, failOther)
		o.logger.Error("Failed to put entry",
			slog.String("title", e.Title()),
			slog.String("tube", o.config.Tube),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to put entry: %w", err)
	}

	o.metrics.countJob(o.config.Tube, opPut)
	o.logger.Debug("Entry put",
		slog.Uint64("job_id", id),
		slog.String("title", e.Title()),
		slog.String("tube", o.config.Tube),
	)
	return nil
}
