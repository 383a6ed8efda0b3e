package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/forecourt/forecourt/internal/jobs"
)

// IdempotencyCleaner deletes idempotency keys older than a cutoff.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges expired idempotency keys.
type IdempotencyCleanupJob struct {
	Store   IdempotencyCleaner
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	retention := payload.retention()
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		loggerOr(j.Logger).Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	loggerOr(j.Logger).Info("idempotency cleanup complete",
		slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}
