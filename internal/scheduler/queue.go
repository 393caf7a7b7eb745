// Package scheduler runs sync jobs for mail accounts: one repeating job
// per active account plus ad-hoc "sync now" jobs, processed by a worker
// pool with retry and exponential backoff.
package scheduler

import (
	"context"
	"time"
)

// Runner executes one sync for an account. The scheduler owns retries;
// the runner just reports success or failure.
type Runner func(ctx context.Context, accountID int64) error

// CompletionHandler is invoked after a job finishes successfully, with
// the time the sync completed.
type CompletionHandler func(accountID int64, at time.Time)

// Queue is the job-queue abstraction the rest of the system schedules
// through. Two implementations exist: an in-process one for single-node
// deployments and tests, and a database-backed one for deployments where
// several processes share the store.
type Queue interface {
	// Enqueue adds a one-shot sync job and returns its id.
	Enqueue(accountID int64) string
	// ScheduleRecurring installs the repeating job for an account,
	// replacing any existing one. At most one repeating job exists per
	// account.
	ScheduleRecurring(accountID int64, every time.Duration)
	// Cancel removes the account's repeating job and drops its pending
	// one-shot jobs.
	Cancel(accountID int64)
	// Start launches the workers; it returns immediately.
	Start(ctx context.Context)
	// Stop shuts the workers down and waits for in-flight jobs.
	Stop()
	// SetCompletionHandler registers the success callback.
	SetCompletionHandler(h CompletionHandler)
}
