package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/freightdesk/internal/commerce"
	jobmetrics "github.com/odyssey-erp/freightdesk/internal/jobs"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// ReminderService is the part of the document service the sweep needs.
type ReminderService interface {
	ListOverdue(ctx context.Context, interval time.Duration, limit int) ([]commerce.Document, error)
	RecordReminder(ctx context.Context, invoiceID int64) (*commerce.Document, error)
}

// ReminderJob records a reminder on every overdue invoice that was not
// reminded within Interval. The service queues the e-mail itself.
type ReminderJob struct {
	Service  ReminderService
	Interval time.Duration
	Limit    int
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskInvoiceReminders tasks.
func (j *ReminderJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("reminders: handler not configured")
	}
	var payload ReminderSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode reminder sweep: %v: %w", err, asynq.SkipRetry)
		}
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = j.Limit
	}
	interval := j.Interval
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}

	tracker := j.Metrics.Track(TaskInvoiceReminders)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	invoices, err := j.Service.ListOverdue(ctx, interval, limit)
	if err != nil {
		logger.Error("list overdue invoices", slog.Any("error", err))
		return err
	}

	reminded := 0
	var failures []error
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := j.Service.RecordReminder(ctx, inv.ID)
		switch {
		case err == nil:
			reminded++
		case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrConcurrencyConflict):
			// Paid, cancelled or reminded by a concurrent sweep.
			logger.Debug("skip reminder", slog.String("reference", inv.Reference), slog.Any("error", err))
		default:
			logger.Error("record reminder", slog.String("reference", inv.Reference), slog.Any("error", err))
			failures = append(failures, fmt.Errorf("%s: %w", inv.Reference, err))
		}
	}
	logger.Info("reminder sweep finished", slog.Int("overdue", len(invoices)), slog.Int("reminded", reminded))
	return errors.Join(failures...)
}
