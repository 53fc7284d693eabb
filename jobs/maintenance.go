package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
)

type queuedEmails interface {
	Queued(ctx context.Context, cutoff time.Time, limit int) ([]SendEmailPayload, error)
}

type emailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) error
}

// SweepEmailsJob re-enqueues email log rows whose hand-off to the queue was lost.
type SweepEmailsJob struct {
	Store   queuedEmails
	Queue   emailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSweepEmailsJob wires dependencies for the mail:sweep handler.
func NewSweepEmailsJob(store queuedEmails, queue emailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepEmailsJob {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &SweepEmailsJob{Store: store, Queue: queue, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle processes TaskTypeSweepEmails tasks.
func (j *SweepEmailsJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil || j.Queue == nil {
		return errors.New("sweep emails: handler not configured")
	}
	payload := SweepEmailsPayload{OlderThan: 10 * time.Minute, Limit: 200}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("sweep emails: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 10 * time.Minute
	}
	if payload.Limit <= 0 {
		payload.Limit = 200
	}
	tracker := j.Metrics.Track(TaskTypeSweepEmails)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskTypeSweepEmails)
	now := time.Now
	if j.clock != nil {
		now = j.clock
	}
	pending, err := j.Store.Queued(ctx, now().Add(-payload.OlderThan), payload.Limit)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range pending {
		if err := j.Queue.EnqueueSendEmail(ctx, p); err != nil {
			logger.Warn("re-enqueue email", slog.Int64("email_log_id", p.EmailLogID), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	logger.Info("swept queued emails", slog.Int("found", len(pending)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

type idempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Store   idempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the idempotency:cleanup handler.
func NewIdempotencyCleanupJob(store idempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	payload := IdempotencyCleanupPayload{Retention: 72 * time.Hour}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Retention <= 0 {
		return fmt.Errorf("idempotency cleanup: retention must be positive: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		return err
	}
	jobLogger(j.Logger, TaskTypeIdempotencyCleanup).Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
