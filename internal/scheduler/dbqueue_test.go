package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func jobStatus(t *testing.T, db *database.DB, jobID string) models.JobStatus {
	t.Helper()
	var status models.JobStatus
	require.NoError(t, db.Get(&status, "SELECT status FROM sync_jobs WHERE id = ?", jobID))
	return status
}

func TestDBQueueProcessesPersistedJob(t *testing.T) {
	db := testDB(t)

	var runs atomic.Int64
	runner := func(_ context.Context, _ int64) error {
		runs.Add(1)
		return nil
	}

	q := NewDBQueue(db, runner, 1, 3, 5*time.Millisecond, 10*time.Millisecond, testLogger())

	var completions atomic.Int64
	q.SetCompletionHandler(func(_ int64, _ time.Time) {
		completions.Add(1)
	})

	q.Start(context.Background())
	defer q.Stop()

	jobID := q.Enqueue(1)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		return completions.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), runs.Load())
	assert.Equal(t, models.JobCompleted, jobStatus(t, db, jobID))
}

func TestDBQueueAbandonsAfterMaxAttempts(t *testing.T) {
	db := testDB(t)

	var runs atomic.Int64
	runner := func(_ context.Context, _ int64) error {
		runs.Add(1)
		return errors.New("mailbox unavailable")
	}

	q := NewDBQueue(db, runner, 1, 2, 5*time.Millisecond, 10*time.Millisecond, testLogger())
	q.Start(context.Background())
	defer q.Stop()

	jobID := q.Enqueue(1)

	require.Eventually(t, func() bool {
		return jobStatus(t, db, jobID) == models.JobAbandoned
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(2), runs.Load())

	var lastError string
	require.NoError(t, db.Get(&lastError, "SELECT last_error FROM sync_jobs WHERE id = ?", jobID))
	assert.Equal(t, "mailbox unavailable", lastError)
}

func TestDBQueueCancelDropsPendingRows(t *testing.T) {
	db := testDB(t)

	runner := func(_ context.Context, _ int64) error { return nil }
	q := NewDBQueue(db, runner, 1, 3, 5*time.Millisecond, time.Hour, testLogger())

	q.Enqueue(1)
	q.Enqueue(1)
	q.Enqueue(2)

	q.Cancel(1)

	var remaining int
	require.NoError(t, db.Get(&remaining, "SELECT COUNT(*) FROM sync_jobs WHERE status = ?", models.JobPending))
	assert.Equal(t, 1, remaining)
}
