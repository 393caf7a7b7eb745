package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidycrm/mailsync/pkg/models"
)

// MemoryQueue is the in-process Queue implementation. Jobs live on a
// buffered channel consumed by a fixed worker pool; a per-account lock
// serializes jobs of the same account while different accounts sync
// concurrently.
type MemoryQueue struct {
	runner      Runner
	workers     int
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	recurring    map[int64]chan struct{}
	accountLocks map[int64]*sync.Mutex
	cancelGen    map[int64]uint64
	onComplete   CompletionHandler
	stopped      bool

	jobs   chan queuedJob
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// queuedJob carries the account's cancel generation captured at enqueue
// time; a Cancel in between bumps the generation and the worker drops the
// stale job instead of running it.
type queuedJob struct {
	*models.SyncJob
	gen uint64
}

// NewMemoryQueue creates an in-process queue. backoff is the first retry
// delay; it doubles on every further attempt up to maxAttempts.
func NewMemoryQueue(runner Runner, workers, maxAttempts int, backoff time.Duration, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		runner:       runner,
		workers:      workers,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
		logger:       logger.With("component", "sync_queue"),
		recurring:    make(map[int64]chan struct{}),
		accountLocks: make(map[int64]*sync.Mutex),
		cancelGen:    make(map[int64]uint64),
		jobs:         make(chan queuedJob, 256),
		stopCh:       make(chan struct{}),
	}
}

// SetCompletionHandler registers the success callback
func (q *MemoryQueue) SetCompletionHandler(h CompletionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = h
}

// Start launches the worker pool
func (q *MemoryQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.stopCh:
					return
				case job := <-q.jobs:
					q.process(ctx, job)
				}
			}
		}()
	}
	q.logger.Info("sync queue started", "workers", q.workers)
}

// Stop shuts the pool down and waits for in-flight jobs to finish
func (q *MemoryQueue) Stop() {
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

// Enqueue adds a one-shot job and returns its id
func (q *MemoryQueue) Enqueue(accountID int64) string {
	job := &models.SyncJob{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      models.JobKindManual,
		Status:    models.JobPending,
		RunAt:     time.Now(),
	}
	q.push(queuedJob{SyncJob: job, gen: q.generation(accountID)})
	return job.ID
}

// ScheduleRecurring installs the repeating job for an account, replacing
// any existing one
func (q *MemoryQueue) ScheduleRecurring(accountID int64, every time.Duration) {
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

	go q.tickLoop(accountID, every, stop)
	q.logger.Info("recurring sync scheduled", "account_id", accountID, "interval", every)
}

func (q *MemoryQueue) tickLoop(accountID int64, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.push(queuedJob{
				SyncJob: &models.SyncJob{
					ID:        uuid.NewString(),
					AccountID: accountID,
					Kind:      models.JobKindPeriodic,
					Status:    models.JobPending,
					RunAt:     time.Now(),
				},
				gen: q.generation(accountID),
			})
		}
	}
}

// Cancel removes the account's repeating job and invalidates its one-shot
// jobs still waiting in the buffer
func (q *MemoryQueue) Cancel(accountID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cancelGen[accountID]++
	if stop, exists := q.recurring[accountID]; exists {
		close(stop)
		delete(q.recurring, accountID)
	}
	q.logger.Info("sync jobs cancelled", "account_id", accountID)
}

func (q *MemoryQueue) generation(accountID int64) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelGen[accountID]
}

// HasRecurring reports whether a repeating job is installed for the account
func (q *MemoryQueue) HasRecurring(accountID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.recurring[accountID]
	return exists
}

// RecurringCount returns the number of installed repeating jobs
func (q *MemoryQueue) RecurringCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.recurring)
}

// push hands a job to the workers without ever blocking the caller
func (q *MemoryQueue) push(job queuedJob) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
	default:
		// Buffer full: wait in the background rather than stalling the
		// caller, and give up on shutdown.
		go func() {
			select {
			case q.jobs <- job:
			case <-q.stopCh:
			}
		}()
	}
}

// process runs one job under the account's lock and applies the retry
// state machine on failure. Jobs cancelled while waiting in the buffer
// are dropped without running.
func (q *MemoryQueue) process(ctx context.Context, job queuedJob) {
	if job.gen != q.generation(job.AccountID) {
		return
	}

	lock := q.lockFor(job.AccountID)
	lock.Lock()
	defer lock.Unlock()

	job.Status = models.JobRunning
	job.Attempts++

	err := q.runner(ctx, job.AccountID)
	if err == nil {
		job.Status = models.JobCompleted
		q.mu.Lock()
		handler := q.onComplete
		q.mu.Unlock()
		if handler != nil {
			handler(job.AccountID, time.Now())
		}
		return
	}

	if job.Attempts >= q.maxAttempts {
		job.Status = models.JobAbandoned
		job.LastError = err.Error()
		// The account's next scheduled occurrence picks it back up.
		q.logger.Error("sync abandoned after max attempts",
			"account_id", job.AccountID, "attempts", job.Attempts, "error", err)
		return
	}

	job.Status = models.JobRetrying
	job.LastError = err.Error()
	delay := q.backoff << (job.Attempts - 1)
	q.logger.Warn("sync failed, retrying",
		"account_id", job.AccountID, "attempt", job.Attempts, "delay", delay, "error", err)

	time.AfterFunc(delay, func() {
		job.Status = models.JobPending
		q.push(job)
	})
}

func (q *MemoryQueue) lockFor(accountID int64) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, exists := q.accountLocks[accountID]
	if !exists {
		lock = &sync.Mutex{}
		q.accountLocks[accountID] = lock
	}
	return lock
}
