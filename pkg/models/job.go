package models

import "time"

// JobKind distinguishes periodic syncs from user-triggered ones.
type JobKind string

const (
	JobKindPeriodic JobKind = "periodic"
	JobKindManual   JobKind = "manual"
)

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobRetrying  JobStatus = "retrying"
	JobAbandoned JobStatus = "abandoned"
)

// SyncJob is one unit of work for the sync queue. The memory queue keeps
// these in-process; the database queue persists them in sync_jobs.
type SyncJob struct {
	ID        string     `db:"id"`
	AccountID int64      `db:"account_id"`
	Kind      JobKind    `db:"kind"`
	Status    JobStatus  `db:"status"`
	Attempts  int        `db:"attempts"`
	LastError string     `db:"last_error"`
	RunAt     time.Time  `db:"run_at"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DoneAt    *time.Time `db:"done_at"`
}
