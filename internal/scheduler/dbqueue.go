package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

// DBQueue is the Queue implementation for deployments where several
// processes share one store. Jobs are rows in sync_jobs; workers claim
// the next due row with a single UPDATE, so any process may pick up any
// job. Recurring schedules are still driven per-process by tickers, which
// at worst produces duplicate pending rows that the dedup invariant
// downstream makes harmless. For the same reason the per-account locks
// only serialize within one process: two processes syncing the same
// account concurrently race on the message-id unique constraint, and the
// loser skips the row.
type DBQueue struct {
	db          *database.DB
	runner      Runner
	workers     int
	maxAttempts int
	backoff     time.Duration
	poll        time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	recurring    map[int64]chan struct{}
	accountLocks map[int64]*sync.Mutex
	onComplete   CompletionHandler
	stopped      bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDBQueue creates a database-backed queue polling for due jobs every
// poll interval.
func NewDBQueue(db *database.DB, runner Runner, workers, maxAttempts int, backoff, poll time.Duration, logger *slog.Logger) *DBQueue {
	return &DBQueue{
		db:           db,
		runner:       runner,
		workers:      workers,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
		poll:         poll,
		logger:       logger.With("component", "sync_queue_db"),
		recurring:    make(map[int64]chan struct{}),
		accountLocks: make(map[int64]*sync.Mutex),
		stopCh:       make(chan struct{}),
	}
}

// SetCompletionHandler registers the success callback
func (q *DBQueue) SetCompletionHandler(h CompletionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = h
}

// Start launches the polling workers
func (q *DBQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			ticker := time.NewTicker(q.poll)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.stopCh:
					return
				case <-ticker.C:
					q.drainDue(ctx)
				}
			}
		}()
	}
	q.logger.Info("sync queue started", "workers", q.workers, "poll", q.poll)
}

// drainDue claims and processes jobs until none are due
func (q *DBQueue) drainDue(ctx context.Context) {
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.db.ClaimNextSyncJob(ctx)
		if errors.Is(err, database.ErrNotFound) {
			return
		}
		if err != nil {
			q.logger.Error("failed to claim job", "error", err)
			return
		}
		q.process(ctx, job)
	}
}

// Stop shuts the workers down and waits for in-flight jobs
func (q *DBQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for id, ch := range q.recurring {
		close(ch)
		delete(q.recurring, id)
	}
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	q.logger.Info("sync queue stopped")
}

// Enqueue inserts a one-shot job row and returns its id
func (q *DBQueue) Enqueue(accountID int64) string {
	job := &models.SyncJob{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      models.JobKindManual,
		Status:    models.JobPending,
		RunAt:     time.Now(),
	}
	if err := q.db.CreateSyncJob(context.Background(), job); err != nil {
		q.logger.Error("failed to enqueue job", "account_id", accountID, "error", err)
		return ""
	}
	return job.ID
}

// ScheduleRecurring installs the repeating job for an account, replacing
// any existing one
func (q *DBQueue) ScheduleRecurring(accountID int64, every time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	if old, exists := q.recurring[accountID]; exists {
		close(old)
	}
	stop := make(chan struct{})
	q.recurring[accountID] = stop

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				job := &models.SyncJob{
					ID:        uuid.NewString(),
					AccountID: accountID,
					Kind:      models.JobKindPeriodic,
					Status:    models.JobPending,
					RunAt:     time.Now(),
				}
				if err := q.db.CreateSyncJob(context.Background(), job); err != nil {
					q.logger.Error("failed to enqueue periodic job", "account_id", accountID, "error", err)
				}
			}
		}
	}()
}

// Cancel removes the repeating job and deletes the account's pending rows
func (q *DBQueue) Cancel(accountID int64) {
	q.mu.Lock()
	if stop, exists := q.recurring[accountID]; exists {
		close(stop)
		delete(q.recurring, accountID)
	}
	q.mu.Unlock()

	if err := q.db.DeletePendingJobsForAccount(context.Background(), accountID); err != nil {
		q.logger.Error("failed to delete pending jobs", "account_id", accountID, "error", err)
	}
}

// process runs one claimed job and persists the resulting state
func (q *DBQueue) process(ctx context.Context, job *models.SyncJob) {
	lock := q.lockFor(job.AccountID)
	lock.Lock()
	defer lock.Unlock()

	job.Attempts++

	err := q.runner(ctx, job.AccountID)
	now := time.Now()

	switch {
	case err == nil:
		job.Status = models.JobCompleted
		job.DoneAt = &now
		q.mu.Lock()
		handler := q.onComplete
		q.mu.Unlock()
		if handler != nil {
			handler(job.AccountID, now)
		}
	case job.Attempts >= q.maxAttempts:
		job.Status = models.JobAbandoned
		job.LastError = err.Error()
		job.DoneAt = &now
		q.logger.Error("sync abandoned after max attempts",
			"account_id", job.AccountID, "attempts", job.Attempts, "error", err)
	default:
		job.Status = models.JobPending
		job.LastError = err.Error()
		job.RunAt = now.Add(q.backoff << (job.Attempts - 1))
		q.logger.Warn("sync failed, retrying",
			"account_id", job.AccountID, "attempt", job.Attempts, "run_at", job.RunAt, "error", err)
	}

	if err := q.db.UpdateSyncJob(ctx, job); err != nil {
		q.logger.Error("failed to update job", "job_id", job.ID, "error", err)
	}
}

func (q *DBQueue) lockFor(accountID int64) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, exists := q.accountLocks[accountID]
	if !exists {
		lock = &sync.Mutex{}
		q.accountLocks[accountID] = lock
	}
	return lock
}
