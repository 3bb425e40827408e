package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/falconlabs/falcon/pkg/types"
)

const jobColumns = `id, kind, wiki_id, status, attempts, max_attempts, priority,
	worker_id, error_message, created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*types.Job, error) {
	var j types.Job
	var workerID, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.WikiID, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.Priority, &workerID, &errMsg, &j.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.WorkerID = workerID.String
	j.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// GetJob returns the job by id, or types.ErrNotFound.
func (s *WikiStore) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	return j, err
}

// GetJobByWiki returns the most recent job for a wiki, or types.ErrNotFound.
func (s *WikiStore) GetJobByWiki(ctx context.Context, wikiID string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE wiki_id = ? ORDER BY created_at DESC LIMIT 1", wikiID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job for wiki %s: %w", wikiID, types.ErrNotFound)
	}
	return j, err
}

// ClaimNextJob atomically claims the highest-priority queued job with retry
// budget remaining: one statement moves it to running, stamps started_at,
// bumps attempts, and records the claiming worker. Returns nil when the
// queue is empty. No two workers can observe the same job as claimable.
func (s *WikiStore) ClaimNextJob(ctx context.Context, workerID string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs
		 SET status = 'running', worker_id = ?, started_at = ?, attempts = attempts + 1
		 WHERE id = (
		     SELECT id FROM jobs
		     WHERE status = 'queued' AND attempts < max_attempts
		     ORDER BY priority DESC, created_at ASC
		     LIMIT 1
		 )
		 RETURNING `+jobColumns,
		workerID, time.Now().UTC())
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// RecoverOrphanedJobs resets jobs left running by a previous process back to
// queued and clears their worker. Called once at orchestrator startup.
func (s *WikiStore) RecoverOrphanedJobs(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = 'queued', worker_id = NULL WHERE status = 'running'")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CompleteJob retires a job successfully.
func (s *WikiStore) CompleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = 'completed', completed_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	return err
}

// RequeueJob returns a failed job to the queue for another attempt,
// recording the error it failed with.
func (s *WikiStore) RequeueJob(ctx context.Context, id, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = 'queued', worker_id = NULL, error_message = ? WHERE id = ?",
		errorMessage, id)
	return err
}

// FailJob marks a job terminally failed and, in the same transaction, marks
// its owning wiki failed with the same error message.
func (s *WikiStore) FailJob(ctx context.Context, id, errorMessage string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var wikiID string
	err = tx.QueryRowContext(ctx,
		`UPDATE jobs SET status = 'failed', error_message = ?, completed_at = ?
		 WHERE id = ? RETURNING wiki_id`,
		errorMessage, now, id).Scan(&wikiID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wikis SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?",
		errorMessage, now, wikiID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// CountJobsByStatus reports how many jobs are in the given status.
func (s *WikiStore) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE status = ?", status).Scan(&n)
	return n, err
}
