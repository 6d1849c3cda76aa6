package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Storage persists task runs in PostgreSQL
type Storage struct {
	db *sqlx.DB
}

// NewStorage returns a Storage over db. Migrate creates the table it uses.
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

const runColumns = `
	run_id, task, status, produced, accepted, rejected, undecided, failed,
	warning, error_message, created_at, started_at, finished_at
`

// CreateRun inserts a new run row
func (s *Storage) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO task_runs (
			run_id, task, status, created_at
		) VALUES (
			$1, $2, $3, $4
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		run.RunID,
		run.Task,
		run.Status,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// StartRun moves a pending run to RUNNING
func (s *Storage) StartRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE task_runs
		SET status = $1,
			started_at = $2
		WHERE run_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, run.Status, run.StartedAt, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	return expectOneRow(result)
}

// FinishRun stores the final status and verdict counts of a run
func (s *Storage) FinishRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE task_runs
		SET status = $1,
			produced = $2,
			accepted = $3,
			rejected = $4,
			undecided = $5,
			failed = $6,
			warning = $7,
			error_message = $8,
			finished_at = $9
		WHERE run_id = $10
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		run.Status,
		run.Produced,
		run.Accepted,
		run.Rejected,
		run.Undecided,
		run.Failed,
		run.Warning,
		run.Error,
		run.FinishedAt,
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return expectOneRow(result)
}

// GetRun returns the run with runID, or ErrRunNotFound
func (s *Storage) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	query := `SELECT ` + runColumns + ` FROM task_runs WHERE run_id = $1`

	err := s.db.GetContext(ctx, &run, query, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

type RunFilter struct {
	Task     string
	Status   string
	PageSize int
	Cursor   *RunCursor
}

type RunCursor struct {
	CreatedAt time.Time
	RunID     string
}

// ListRuns returns up to PageSize+1 runs, newest first. The extra row tells
// the caller another page exists.
func (s *Storage) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM task_runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Task != "" {
		query += fmt.Sprintf(" AND task = $%d", argIdx)
		args = append(args, filter.Task)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, run_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RunID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, run_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var runs []Run
	err := s.db.SelectContext(ctx, &runs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}
