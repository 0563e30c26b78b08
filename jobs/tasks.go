package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/freightdesk/internal/commerce"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDeliverDocument renders a document and e-mails it to its recipient.
	TaskDeliverDocument = "document:deliver"
	// TaskInvoiceReminders sweeps overdue invoices and queues reminders.
	TaskInvoiceReminders = "invoice:reminders"
	// TaskIdempotencyCleanup drops expired request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReminderSweepPayload tunes one reminder sweep.
type ReminderSweepPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewDeliveryTask constructs a delivery task. Identical requests within the same
// minute share a task id so that double clicks collapse into one e-mail.
func NewDeliveryTask(req commerce.DeliveryRequest, now time.Time) (*asynq.Task, []asynq.Option, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	key := fmt.Sprintf("DELIVER:%s:%d:%s:%t:%d", req.Kind, req.DocumentID, req.To, req.Reminder, now.Unix()/60)
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(uuid.NewSHA1(uuid.Nil, []byte(key)).String()),
	}
	return asynq.NewTask(TaskDeliverDocument, data), opts, nil
}

// NewReminderSweepTask constructs the periodic reminder sweep task.
func NewReminderSweepTask(payload ReminderSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceReminders, data), nil
}
