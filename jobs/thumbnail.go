package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/forecourt/forecourt/internal/jobs"
	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/shared"
)

// ThumbnailGenerator builds and stores an image thumbnail.
type ThumbnailGenerator interface {
	GenerateThumbnail(ctx context.Context, imageID int64) (string, error)
}

// ThumbnailJob handles TaskStockThumbnail.
type ThumbnailJob struct {
	Stock   ThumbnailGenerator
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Handle processes TaskStockThumbnail tasks. Images the decoder cannot read
// are skipped rather than retried.
func (j *ThumbnailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("thumbnail: handler not configured")
	}
	var payload ThumbnailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("thumbnail payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskStockThumbnail)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOr(j.Logger).With(slog.Int64("image_id", payload.ImageID))
	key, err := j.Stock.GenerateThumbnail(ctx, payload.ImageID)
	switch {
	case errors.Is(err, media.ErrUnsupportedImage):
		logger.Info("thumbnail skipped for unsupported image")
		return jobmetrics.ErrSkipped
	case errors.Is(err, shared.ErrNotFound):
		logger.Info("thumbnail skipped, image was removed")
		return jobmetrics.ErrSkipped
	case err != nil:
		logger.Error("generate thumbnail", slog.Any("error", err))
		return err
	}
	logger.Info("thumbnail stored", slog.String("key", key))
	return nil
}
