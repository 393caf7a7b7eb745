package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tidycrm/mailsync/pkg/models"
)

// CreateSyncJob inserts a new pending job row
func (db *DB) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (id, account_id, kind, status, attempts, last_error, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		job.ID,
		job.AccountID,
		job.Kind,
		job.Status,
		job.Attempts,
		job.LastError,
		job.RunAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// ClaimNextSyncJob atomically moves the oldest due pending job to running
// and returns it. Returns ErrNotFound when no job is due. The single UPDATE
// makes the claim safe across multiple worker processes sharing the store.
func (db *DB) ClaimNextSyncJob(ctx context.Context) (*models.SyncJob, error) {
	query := `
		UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at LIMIT 1
		)
		RETURNING *
	`
	now := time.Now()
	var job models.SyncJob
	err := db.GetContext(ctx, &job, query, models.JobRunning, now, models.JobPending, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync job: %w", err)
	}
	return &job, nil
}

// UpdateSyncJob persists status, attempts and scheduling changes
func (db *DB) UpdateSyncJob(ctx context.Context, job *models.SyncJob) error {
	query := `
		UPDATE sync_jobs SET status = ?, attempts = ?, last_error = ?, run_at = ?, done_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		job.Status,
		job.Attempts,
		job.LastError,
		job.RunAt,
		job.DoneAt,
		now,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	job.UpdatedAt = now
	return nil
}

// DeletePendingJobsForAccount removes not-yet-started jobs of an account,
// used when the account is deactivated or deleted
func (db *DB) DeletePendingJobsForAccount(ctx context.Context, accountID int64) error {
	query := `DELETE FROM sync_jobs WHERE account_id = ? AND status IN (?, ?)`
	_, err := db.ExecContext(ctx, query, accountID, models.JobPending, models.JobRetrying)
	if err != nil {
		return fmt.Errorf("failed to delete pending jobs: %w", err)
	}
	return nil
}
