package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/forecourt/forecourt/internal/jobs"
	"github.com/forecourt/forecourt/internal/shared"
)

// PDFStorer renders an invoice and stores the resulting PDF.
type PDFStorer interface {
	StorePDF(ctx context.Context, dealerID, invoiceID int64, renderer string) (string, error)
}

// PDFObserver records render outcomes.
type PDFObserver interface {
	ObservePDF(renderer string, started time.Time, err error)
}

// Locker obtains short-lived distributed locks. *redislock.Client satisfies it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// InvoicePDFLockTTL bounds how long one worker may hold an invoice.
const InvoicePDFLockTTL = 2 * time.Minute

// InvoicePDFJob renders invoice PDFs under a per-invoice lock.
type InvoicePDFJob struct {
	Invoices PDFStorer
	Locker   Locker
	Observer PDFObserver
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// Handle processes TaskInvoicePDF tasks.
func (j *InvoicePDFJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Invoices == nil {
		return errors.New("invoice pdf: handler not configured")
	}
	var payload InvoicePDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invoice pdf payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskInvoicePDF)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOr(j.Logger).With(
		slog.Int64("dealer_id", payload.DealerID),
		slog.Int64("invoice_id", payload.InvoiceID),
		slog.String("renderer", payload.Renderer),
	)

	if j.Locker != nil {
		lock, lerr := j.Locker.Obtain(ctx, shared.InvoiceLockKey(payload.InvoiceID), InvoicePDFLockTTL, nil)
		if errors.Is(lerr, redislock.ErrNotObtained) {
			logger.Info("invoice pdf already rendering elsewhere")
			return jobmetrics.ErrSkipped
		}
		if lerr != nil {
			logger.Error("obtain invoice lock", slog.Any("error", lerr))
			return lerr
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
				logger.Warn("release invoice lock", slog.Any("error", rerr))
			}
		}()
	}

	started := time.Now()
	key, err := j.Invoices.StorePDF(ctx, payload.DealerID, payload.InvoiceID, payload.Renderer)
	if j.Observer != nil {
		j.Observer.ObservePDF(payload.Renderer, started, err)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("invoice pdf for missing invoice")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Error("render invoice pdf", slog.Any("error", err))
		return err
	}
	logger.Info("invoice pdf stored", slog.String("key", key), slog.Duration("duration", time.Since(started)))
	return nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
