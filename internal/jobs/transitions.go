package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Claim atomically moves the oldest queued job to running and returns it.
// It returns nil, nil when nothing is queued.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	ts := s.timestamp()
	var job *Job
	err := retryOnBusy(ensureContext(ctx), func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
            SET status = ?, attempts = attempts + 1, started_at = ?, finished_at = NULL,
                error_message = NULL, updated_at = ?
            WHERE id = (
                SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1
            ) AND status = ?
            RETURNING `+jobColumns,
			StatusRunning, ts, ts, StatusQueued, StatusQueued,
		)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete moves a running job to succeeded and records its artifacts.
func (s *Store) Complete(ctx context.Context, id int64, outcome Outcome) error {
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
        SET status = ?, run_id = ?, output_dir = ?, image_path = ?, glb_path = ?,
            error_message = NULL, finished_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		StatusSucceeded,
		nullableString(outcome.RunID),
		nullableString(outcome.OutputDir),
		nullableString(outcome.ImagePath),
		nullableString(outcome.GLBPath),
		ts, ts,
		id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOne(res, id, "complete", StatusRunning)
}

// Fail moves a running job to failed with message. Artifacts produced before
// the failure are kept.
func (s *Store) Fail(ctx context.Context, id int64, message string, outcome Outcome) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "job failed"
	}
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
        SET status = ?, error_message = ?, run_id = ?, output_dir = ?, image_path = ?, glb_path = ?,
            finished_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		StatusFailed,
		message,
		nullableString(outcome.RunID),
		nullableString(outcome.OutputDir),
		nullableString(outcome.ImagePath),
		nullableString(outcome.GLBPath),
		ts, ts,
		id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOne(res, id, "fail", StatusRunning)
}

// Retry moves failed jobs back to queued. With no ids every failed job is retried.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE jobs
        SET status = ?, error_message = NULL, started_at = NULL, finished_at = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusQueued, s.timestamp(), StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning returns jobs left running by a crashed worker to queued.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?`,
		StatusQueued, s.timestamp(), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

func expectOne(res sql.Result, id int64, op string, from Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s job %d requires status %s", ErrInvalidTransition, op, id, from)
	}
	return nil
}
