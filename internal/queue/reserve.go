package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
	"github.com/cuongbtq/beanstalk-bridge/shared/beanstalkd"
)

type batchState int

const (
	stateCollecting batchState = iota
	stateDraining
	stateDone
)

func (s batchState) String() string {
	switch s {
	case stateCollecting:
		return "collecting"
	case stateDraining:
		return "draining"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Reserver drains jobs from a watched tube into entries, one batch per call
type Reserver struct {
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

// NewReserver returns a Reserver for the tube in cfg. metrics may be nil.
func NewReserver(cfg Config, logger *slog.Logger, metrics *Metrics) *Reserver {
	return &Reserver{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Reserve runs one reservation batch on sess, which must already watch the
// tube. It keeps reserving while jobs arrive and stops requesting more once
// more than ChunkSize jobs were handled, so a batch may end up one reservation
// round larger than ChunkSize. Cancelling ctx stops further reservations.
//
// In the deferred variant every returned entry carries JobIDField and its job
// stays reserved on sess. With DeleteOnReserve every handled job is deleted,
// including the ones that failed to decode.
//
// When the connection fails mid-batch the entries collected so far are
// returned together with the error.
func (r *Reserver) Reserve(ctx context.Context, sess Session) ([]*entry.Entry, error) {
	state := stateCollecting
	count := 0
	var entries []*entry.Entry

	inFlight, err := r.reserveInto(sess, nil)
	if err != nil {
		return nil, err
	}

	for len(inFlight) > 0 && state == stateCollecting {
		round := slices.Clone(inFlight)
		handled := make(map[uint64]struct{}, len(round))

		for _, job := range round {
			e, err := r.handle(sess, job)
			if err != nil {
				r.finish(count, stateDraining)
				return entries, err
			}
			if e != nil {
				entries = append(entries, e)
			}
			handled[job.ID] = struct{}{}
			count++
		}

		inFlight = slices.DeleteFunc(inFlight, func(job *beanstalkd.Job) bool {
			_, ok := handled[job.ID]
			return ok
		})

		if count > r.config.ChunkSize {
			state = stateDraining
			continue
		}
		if ctx.Err() != nil {
			r.logger.Info("Reservation batch stopped",
				slog.String("tube", r.config.Tube),
				slog.Int("handled", count),
				slog.Any("reason", ctx.Err()),
			)
			state = stateDraining
			continue
		}

		inFlight, err = r.reserveInto(sess, inFlight)
		if err != nil {
			r.finish(count, state)
			return entries, err
		}
	}

	r.finish(count, state)
	return entries, nil
}

func (r *Reserver) finish(count int, from batchState) {
	r.metrics.observeBatch(r.config.Tube, count)
	r.logger.Debug("Reservation batch finished",
		slog.String("tube", r.config.Tube),
		slog.Int("handled", count),
		slog.String("from_state", from.String()),
		slog.String("state", stateDone.String()),
	)
}

// reserveInto makes one reserve call and appends the job, if any
func (r *Reserver) reserveInto(sess Session, inFlight []*beanstalkd.Job) ([]*beanstalkd.Job, error) {
	job, err := sess.Reserve(r.config.Timeout)
	if err != nil {
		return inFlight, fmt.Errorf("failed to reserve from tube %s: %w", r.config.Tube, err)
	}
	if job == nil {
		return inFlight, nil
	}

	r.metrics.countJob(r.config.Tube, opReserved)
	r.logger.Debug("Job reserved",
		slog.Uint64("job_id", job.ID),
		slog.String("tube", r.config.Tube),
	)

	return append(inFlight, job), nil
}

// handle decodes one reserved job. A nil entry with a nil error means the
// job was skipped.
func (r *Reserver) handle(sess Session, job *beanstalkd.Job) (*entry.Entry, error) {
	e, decodeErr := Decode(job.ID, job.Body)
	if decodeErr != nil {
		r.metrics.countFailure(r.config.Tube, failDecode)
		r.logger.Error("Could not decode job",
			slog.Uint64("job_id", job.ID),
			slog.String("tube", r.config.Tube),
			slog.Any("error", decodeErr),
		)
	}

	if r.config.DeleteOnReserve {
		if err := r.delete(sess, job.ID); err != nil {
			return nil, err
		}
		return e, nil
	}

	if e != nil {
		e.Set(JobIDField, job.ID)
	}
	return e, nil
}

func (r *Reserver) delete(sess Session, id uint64) error {
	err := sess.Delete(id)
	switch {
	case err == nil:
		r.metrics.countJob(r.config.Tube, opDeleted)
		return nil
	case errors.Is(err, ErrJobGone):
		r.metrics.countFailure(r.config.Tube, failGone)
		r.logger.Warn("Job has gone away",
			slog.Uint64("job_id", id),
			slog.String("tube", r.config.Tube),
		)
		return nil
	default:
		r.metrics.countFailure(r.config.Tube, failOther)
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
}
