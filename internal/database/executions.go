package database

import (
	"context"
	"fmt"

	"github.com/itstheanurag/runbox/internal/executor"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
	job_id            UUID PRIMARY KEY,
	language          TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	exit_code         INTEGER NOT NULL,
	timed_out         BOOLEAN NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	compile_time_ms   BIGINT NOT NULL,
	source_bytes      INTEGER NOT NULL,
	stdout_bytes      INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertExecution = `
INSERT INTO executions (
	job_id, language, outcome, exit_code, timed_out,
	execution_time_ms, compile_time_ms, source_bytes, stdout_bytes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (job_id) DO NOTHING`

func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, createExecutionsTable); err != nil {
		return fmt.Errorf("failed to create executions table: %w", err)
	}
	return nil
}

// RecordExecution stores an audit row for a finished job. Source and output
// are not stored, only their sizes. Jobs rejected before staging have no id
// and are skipped.
func (db *Database) RecordExecution(ctx context.Context, opts executor.ExecuteOptions, res *executor.ExecutionResult) error {
	if res == nil || res.JobID == "" {
		return nil
	}
	_, err := db.Pool.Exec(ctx, insertExecution,
		res.JobID,
		res.Language,
		string(res.Outcome),
		res.ExitCode,
		res.TimedOut,
		res.ExecutionTime.Milliseconds(),
		res.CompileTime.Milliseconds(),
		len(opts.SourceCode),
		len(res.Stdout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", res.JobID, err)
	}
	return nil
}
