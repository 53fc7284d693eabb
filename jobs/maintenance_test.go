package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
)

type recordingQueue struct {
	ids  []int64
	fail map[int64]bool
}

func (q *recordingQueue) EnqueueSendEmail(_ context.Context, p SendEmailPayload) error {
	if q.fail[p.EmailLogID] {
		return errors.New("enqueue failed")
	}
	q.ids = append(q.ids, p.EmailLogID)
	return nil
}

func TestSweepEmailsReenqueuesQueuedRows(t *testing.T) {
	store := newFakeEmailLogs()
	store.queued = []SendEmailPayload{{EmailLogID: 1, To: "a@b.example"}, {EmailLogID: 2, To: "c@d.example"}, {EmailLogID: 3, To: "e@f.example"}}
	queue := &recordingQueue{}
	job := NewSweepEmailsJob(store, queue, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewSweepEmailsTask(5*time.Minute, 2)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{1, 2}, queue.ids)
	require.Equal(t, now.Add(-5*time.Minute), store.cutoff)
}

func TestSweepEmailsDefaultsAndPartialFailure(t *testing.T) {
	store := newFakeEmailLogs()
	store.queued = []SendEmailPayload{{EmailLogID: 1, To: "a@b.example"}, {EmailLogID: 2, To: "c@d.example"}}
	queue := &recordingQueue{fail: map[int64]bool{1: true}}
	job := NewSweepEmailsJob(store, queue, nil, nil)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSweepEmails, nil))
	require.Error(t, err)
	require.Equal(t, []int64{2}, queue.ids)
	require.Equal(t, now.Add(-10*time.Minute), store.cutoff)
}

type fakeCleaner struct {
	retention time.Duration
	removed   int64
}

func (c *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.retention = olderThan
	return c.removed, nil
}

func TestIdempotencyCleanup(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	job := NewIdempotencyCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.retention)

	body, _ := json.Marshal(IdempotencyCleanupPayload{Retention: -time.Hour})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeIdempotencyCleanup, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
