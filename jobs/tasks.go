package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoicePDF renders an invoice PDF and stores it.
	TaskInvoicePDF = "invoice:render_pdf"
	// TaskStockThumbnail builds the thumbnail for an uploaded vehicle image.
	TaskStockThumbnail = "stock:thumbnail"
	// TaskIdempotencyCleanup purges stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var (
	// ErrUnknownTask is returned when a task type has no handler.
	ErrUnknownTask = errors.New("unknown task type")
	// ErrInvalidPayload is returned when a payload cannot build a task.
	ErrInvalidPayload = errors.New("invalid task payload")
)

// IdempotencyCleanupCron runs the cleanup once a day.
const IdempotencyCleanupCron = "15 3 * * *"

// InvoicePDFPayload identifies the invoice and renderer to use.
type InvoicePDFPayload struct {
	DealerID  int64  `json:"dealer_id"`
	InvoiceID int64  `json:"invoice_id"`
	Renderer  string `json:"renderer"`
}

// ThumbnailPayload identifies a stored vehicle image.
type ThumbnailPayload struct {
	ImageID int64 `json:"image_id"`
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// DefaultIdempotencyRetention keeps keys for a week.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

func (p IdempotencyCleanupPayload) retention() time.Duration {
	if p.RetentionHours <= 0 {
		return DefaultIdempotencyRetention
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewInvoicePDFTask constructs an Asynq task.
func NewInvoicePDFTask(payload InvoicePDFPayload) (*asynq.Task, error) {
	if payload.DealerID <= 0 || payload.InvoiceID <= 0 {
		return nil, fmt.Errorf("%w: dealer and invoice are required", ErrInvalidPayload)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoicePDF, data, asynq.MaxRetry(5), asynq.Timeout(2*time.Minute)), nil
}

// NewThumbnailTask constructs an Asynq task.
func NewThumbnailTask(payload ThumbnailPayload) (*asynq.Task, error) {
	if payload.ImageID <= 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidPayload)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockThumbnail, data, asynq.MaxRetry(3), asynq.Timeout(time.Minute)), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(1)), nil
}

// TaskTypes lists the task types the worker handles, in registration order.
func TaskTypes() []string {
	return []string{TaskInvoicePDF, TaskStockThumbnail, TaskIdempotencyCleanup}
}

// NewTask builds a task by type from a raw JSON payload. An empty payload is
// treated as an empty object.
func NewTask(taskType string, payload []byte) (*asynq.Task, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	switch taskType {
	case TaskInvoicePDF:
		var p InvoicePDFPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, taskType, err)
		}
		return NewInvoicePDFTask(p)
	case TaskStockThumbnail:
		var p ThumbnailPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, taskType, err)
		}
		return NewThumbnailTask(p)
	case TaskIdempotencyCleanup:
		var p IdempotencyCleanupPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, taskType, err)
		}
		return NewIdempotencyCleanupTask(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskType)
	}
}
