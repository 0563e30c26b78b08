package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freightdesk/internal/commerce"
	jobmetrics "github.com/odyssey-erp/freightdesk/internal/jobs"
	"github.com/odyssey-erp/freightdesk/internal/shared"
	"github.com/odyssey-erp/freightdesk/report"
)

// DocumentSource loads documents and their PDF renditions.
type DocumentSource interface {
	Get(ctx context.Context, kind commerce.Kind, id int64) (*commerce.Document, error)
	View(doc *commerce.Document) commerce.DocumentView
	PDF(ctx context.Context, kind commerce.Kind, id int64) ([]byte, string, error)
}

// DeliveryJob renders a document and mails it with the PDF attached.
type DeliveryJob struct {
	Documents DocumentSource
	Mailer    commerce.Mailer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Lang      language.Tag
}

// Handle processes TaskDeliverDocument tasks.
func (j *DeliveryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var req commerce.DeliveryRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("decode delivery: %v: %w", err, asynq.SkipRetry)
	}
	if !req.Kind.Valid() || req.DocumentID <= 0 || strings.TrimSpace(req.To) == "" {
		return fmt.Errorf("incomplete delivery request: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDeliverDocument)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.String("kind", string(req.Kind)), slog.Int64("document_id", req.DocumentID))

	doc, err := j.Documents.Get(ctx, req.Kind, req.DocumentID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("document vanished before delivery")
		return fmt.Errorf("document %d: %w", req.DocumentID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	pdf, filename, err := j.Documents.PDF(ctx, req.Kind, req.DocumentID)
	if err != nil {
		return err
	}

	msg := composeMessage(j.Lang, j.Documents.View(doc), req.Reminder)
	msg.To = req.To
	msg.Attachments = []commerce.Attachment{{Filename: filename, ContentType: "application/pdf", Data: pdf}}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		return err
	}

	reason := "send"
	if req.Reminder {
		reason = "reminder"
	}
	j.Metrics.AddDelivered(string(req.Kind), reason, 1)
	logger.Info("document delivered", slog.String("reference", doc.Reference), slog.String("reason", reason))
	return nil
}

func (j *DeliveryJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func composeMessage(lang language.Tag, view commerce.DocumentView, reminder bool) commerce.Message {
	total := report.FormatMoney(lang, view.Totals.TotalTTC, view.Currency)
	var subject string
	var body strings.Builder

	greeting := "Hello"
	if view.Customer.Name != "" {
		greeting += " " + view.Customer.Name
	}
	body.WriteString(greeting + ",\n\n")

	switch {
	case view.Kind == commerce.KindQuote:
		subject = "Quote " + view.Reference
		fmt.Fprintf(&body, "Please find attached our quote %s for a total of %s.\n", view.Reference, total)
		if view.ValidUntil != nil {
			fmt.Fprintf(&body, "It is valid until %s.\n", view.ValidUntil.Format("02 Jan 2006"))
		}
		if view.PublicURL != "" {
			fmt.Fprintf(&body, "\nYou can accept, reject or comment on it online:\n%s\n", view.PublicURL)
		}
	case reminder:
		balance := report.FormatMoney(lang, view.Totals.Balance, view.Currency)
		subject = "Payment reminder: invoice " + view.Reference
		fmt.Fprintf(&body, "Our records show that invoice %s", view.Reference)
		if view.DueDate != nil {
			fmt.Fprintf(&body, ", due on %s,", view.DueDate.Format("02 Jan 2006"))
		}
		fmt.Fprintf(&body, " still has %s outstanding.\n", balance)
		if view.PublicURL != "" {
			fmt.Fprintf(&body, "\nView it online:\n%s\n", view.PublicURL)
		}
	default:
		subject = "Invoice " + view.Reference
		fmt.Fprintf(&body, "Please find attached invoice %s for a total of %s.\n", view.Reference, total)
		if view.DueDate != nil {
			fmt.Fprintf(&body, "Payment is due by %s.\n", view.DueDate.Format("02 Jan 2006"))
		}
		if view.PublicURL != "" {
			fmt.Fprintf(&body, "\nView it online:\n%s\n", view.PublicURL)
		}
	}
	if view.Message != "" {
		body.WriteString("\n" + view.Message + "\n")
	}
	body.WriteString("\nKind regards\n")
	return commerce.Message{Subject: subject, Body: body.String()}
}
