package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
)

// Verdicts are the entry collections a task run ends up with
type Verdicts struct {
	Accepted  []*entry.Entry
	Rejected  []*entry.Entry
	Undecided []*entry.Entry
}

// HasJobs reports whether any entry carries a job id
func (v Verdicts) HasJobs() bool {
	for _, group := range [][]*entry.Entry{v.Accepted, v.Rejected, v.Undecided} {
		for _, e := range group {
			if _, ok := JobID(e); ok {
				return true
			}
		}
	}
	return false
}

// Resolver settles reserved jobs once the pipeline reached its verdicts:
// decided entries have their jobs deleted, undecided ones are released with
// the configured delay.
type Resolver struct {
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

// NewResolver returns a Resolver for the tube in cfg. metrics may be nil.
func NewResolver(cfg Config, logger *slog.Logger, metrics *Metrics) *Resolver {
	return &Resolver{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve issues the delete and release calls on sess. Entries without a job
// id are ignored. Missing jobs are logged and skipped; any other failure is
// collected and returned after every entry was attempted. Resolve does not
// close sess.
func (r *Resolver) Resolve(sess Session, v Verdicts) error {
	var errs []error

	for _, group := range [][]*entry.Entry{v.Accepted, v.Rejected} {
		for _, e := range group {
			id, ok := JobID(e)
			if !ok {
				continue
			}
			if err := r.deleteJob(sess, id); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, e := range v.Undecided {
		id, ok := JobID(e)
		if !ok {
			continue
		}
		if err := r.releaseJob(sess, id); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Resolver) deleteJob(sess Session, id uint64) error {
	if _, err := sess.Peek(id); err != nil {
		return r.failed("delete", id, err)
	}
	if err := sess.Delete(id); err != nil {
		return r.failed("delete", id, err)
	}

	r.metrics.countJob(r.config.Tube, opDeleted)
	r.logger.Debug("Job deleted",
		slog.Uint64("job_id", id),
		slog.String("tube", r.config.Tube),
	)
	return nil
}

func (r *Resolver) releaseJob(sess Session, id uint64) error {
	if _, err := sess.Peek(id); err != nil {
		return r.failed("release", id, err)
	}
	if err := sess.Release(id, r.config.Delay); err != nil {
		return r.failed("release", id, err)
	}

	r.metrics.countJob(r.config.Tube, opReleased)
	r.logger.Debug("Job released",
		slog.Uint64("job_id", id),
		slog.String("tube", r.config.Tube),
		slog.Duration("delay", r.config.Delay),
	)
	return nil
}

// failed swallows ErrJobGone and wraps everything else
func (r *Resolver) failed(op string, id uint64, err error) error {
	if errors.Is(err, ErrJobGone) {
		r.metrics.countFailure(r.config.Tube, failGone)
		r.logger.Warn("Job has gone away",
			slog.Uint64("job_id", id),
			slog.String("tube", r.config.Tube),
			slog.String("op", op),
		)
		return nil
	}

	r.metrics.countFailure(r.config.Tube, failOther)
	r.logger.Error("Failed to resolve job",
		slog.Uint64("job_id", id),
		slog.String("tube", r.config.Tube),
		slog.String("op", op),
		slog.Any("error", err),
	)
	return fmt.Errorf("failed to %s job %d: %w", op, id, err)
}
