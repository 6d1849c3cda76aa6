package history

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_runs (
	run_id        UUID PRIMARY KEY,
	task          TEXT NOT NULL,
	status        TEXT NOT NULL,
	produced      INTEGER NOT NULL DEFAULT 0,
	accepted      INTEGER NOT NULL DEFAULT 0,
	rejected      INTEGER NOT NULL DEFAULT 0,
	undecided     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	warning       TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS task_runs_created_idx ON task_runs (created_at DESC, run_id DESC);
CREATE INDEX IF NOT EXISTS task_runs_task_idx ON task_runs (task, created_at DESC);
`

// Migrate creates the run history table when it does not exist yet
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate run history: %w", err)
	}
	return nil
}
