package commerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/commerce/pricing"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// Config carries document defaults.
type Config struct {
	DefaultCurrency string
	PaymentDays     int
	ValidityDays    int
	PortalBaseURL   string
}

func (c Config) withDefaults() Config {
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "EUR"
	}
	if c.PaymentDays <= 0 {
		c.PaymentDays = 30
	}
	if c.ValidityDays <= 0 {
		c.ValidityDays = 30
	}
	return c
}

// Dependencies wires the collaborators of the service. Only Repo is required.
type Dependencies struct {
	Repo     Repository
	Catalog  ProductLookup
	Queue    DeliveryQueue
	Renderer Renderer
	Observer Observer
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service implements the staff side of the document lifecycle.
type Service struct {
	repo     Repository
	catalog  ProductLookup
	queue    DeliveryQueue
	renderer Renderer
	observer Observer
	logger   *slog.Logger
	clock    func() time.Time
	cfg      Config
}

// NewService constructs a Service.
func NewService(deps Dependencies, cfg Config) *Service {
	s := &Service{
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		queue:    deps.Queue,
		renderer: deps.Renderer,
		observer: deps.Observer,
		logger:   deps.Logger,
		clock:    deps.Clock,
		cfg:      cfg.withDefaults(),
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create stores a new Draft document with a fresh public token.
func (s *Service) Create(ctx context.Context, kind Kind, req CreateRequest, actor shared.Actor) (*Document, error) {
	if !kind.Valid() {
		return nil, shared.Validation("kind", "unknown document kind %q", kind)
	}
	customer := req.Customer.customer()
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	lines, err := s.buildLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	token, err := NewPublicToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	issue := dateOnly(now)
	if d := req.IssueDate.value(); d != nil {
		issue = *d
	}

	doc := &Document{
		Kind:         kind,
		Customer:     customer,
		IssueDate:    issue,
		Status:       StatusDraft,
		Message:      strings.TrimSpace(req.Message),
		PaymentTerms: strings.TrimSpace(req.PaymentTerms),
		Currency:     s.currency(req.Currency),
		Discount:     req.Discount.Normalized(),
		PublicToken:  token,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        lines,
	}
	if err := s.applyDates(doc, req.ValidUntil, req.DueDate); err != nil {
		return nil, err
	}
	if err := doc.Recompute(); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ref, err := repo.NextReference(ctx, kind, issue.Year())
		if err != nil {
			return err
		}
		doc.Reference = ref
		return repo.Insert(ctx, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", strings.ToLower(string(kind)), err)
	}

	s.logger.Info("document created",
		slog.String("kind", string(kind)),
		slog.Int64("id", doc.ID),
		slog.String("reference", doc.Reference),
		slog.String("actor", actor.String()),
	)
	return doc, nil
}

func (s *Service) currency(raw string) string {
	cur := strings.ToUpper(strings.TrimSpace(raw))
	if cur == "" {
		return s.cfg.DefaultCurrency
	}
	return cur
}

// applyDates fills the kind specific date, defaulting from configuration.
func (s *Service) applyDates(doc *Document, validUntil, dueDate *Date) error {
	switch doc.Kind {
	case KindQuote:
		doc.DueDate = nil
		if d := validUntil.value(); d != nil {
			doc.ValidUntil = d
		} else if doc.ValidUntil == nil {
			d := doc.IssueDate.AddDate(0, 0, s.cfg.ValidityDays)
			doc.ValidUntil = &d
		}
		if doc.ValidUntil.Before(doc.IssueDate) {
			return shared.Validation("valid_until", "must not be before the issue date")
		}
	case KindInvoice:
		doc.ValidUntil = nil
		if d := dueDate.value(); d != nil {
			doc.DueDate = d
		} else if doc.DueDate == nil {
			d := doc.IssueDate.AddDate(0, 0, s.cfg.PaymentDays)
			doc.DueDate = &d
		}
		if doc.DueDate.Before(doc.IssueDate) {
			return shared.Validation("due_date", "must not be before the issue date")
		}
	}
	return nil
}

// buildLines converts inputs into lines, copying catalog values into empty fields.
func (s *Service) buildLines(ctx context.Context, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		line := Line{
			Type:        in.Type.Normalized(),
			ProductID:   in.ProductID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			Unit:        strings.TrimSpace(in.Unit),
			Position:    in.Position,
		}
		if in.UnitPrice != nil {
			line.UnitPrice = *in.UnitPrice
		}
		if in.VATRate != nil {
			line.VATRate = *in.VATRate
		}
		if in.ProductID != nil {
			if err := s.snapshotProduct(ctx, i, &line, in); err != nil {
				return nil, err
			}
		}
		if line.Position <= 0 {
			line.Position = i + 1
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) snapshotProduct(ctx context.Context, i int, line *Line, in LineInput) error {
	field := fmt.Sprintf("lines[%d].product_id", i)
	if s.catalog == nil {
		return shared.Validation(field, "catalog is not available")
	}
	product, err := s.catalog.Get(ctx, *in.ProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Validation(field, "unknown product %d", *in.ProductID)
		}
		return fmt.Errorf("load product %d: %w", *in.ProductID, err)
	}
	if !product.IsActive {
		return shared.Validation(field, "product %s is inactive", product.Code)
	}
	if line.Description == "" {
		line.Description = product.Name
	}
	if line.Unit == "" {
		line.Unit = product.Unit
	}
	if in.UnitPrice == nil {
		line.UnitPrice = product.UnitPrice
	}
	if in.VATRate == nil {
		line.VATRate = product.VATRate
	}
	return nil
}

// Get loads one document of kind.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return loadKind(ctx, s.repo, kind, id)
}

func loadKind(ctx context.Context, repo Repository, kind Kind, id int64) (*Document, error) {
	doc, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%s %d: %w", strings.ToLower(string(kind)), id, shared.ErrNotFound)
		}
		return nil, err
	}
	if doc.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", strings.ToLower(string(kind)), id, shared.ErrNotFound)
	}
	return doc, nil
}

// List returns a page of documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	filter.Limit, filter.Offset = shared.NormalizeLimit(filter.Limit, filter.Offset)
	return s.repo.List(ctx, filter)
}

// History returns the audit trail of a document.
func (s *Service) History(ctx context.Context, kind Kind, id int64) ([]HistoryEntry, error) {
	if _, err := loadKind(ctx, s.repo, kind, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// Update edits a document. Final documents require an override with a reason,
// which is recorded in the history.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, req UpdateRequest, actor shared.Actor) (*Document, error) {
	var customer *Customer
	if req.Customer != nil {
		c := req.Customer.customer()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		customer = &c
	}

	var lines []Line
	if req.Lines != nil {
		built, err := s.buildLines(ctx, *req.Lines)
		if err != nil {
			return nil, err
		}
		lines = built
	}

	var updated *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := loadKind(ctx, repo, kind, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != doc.Version {
			return fmt.Errorf("%w: %s is at version %d", shared.ErrConcurrencyConflict, doc.Reference, doc.Version)
		}

		action, details := ActionUpdated, ""
		if doc.IsTerminal() {
			if !req.Override {
				return fmt.Errorf("%w: %s is %s and cannot be edited without an override", shared.ErrInvalidState, doc.Reference, doc.Status)
			}
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				return shared.Validation("reason", "required to override a final document")
			}
			action, details = ActionOverride, reason
		}

		next := doc.Clone()
		changed := s.applyUpdate(next, req, customer, lines)
		if err := s.applyDates(next, req.ValidUntil, req.DueDate); err != nil {
			return err
		}
		if err := next.Recompute(); err != nil {
			return err
		}
		if action == ActionUpdated {
			details = strings.Join(changed, ", ")
		}

		now := s.now()
		next.UpdatedAt = now
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		if lines != nil {
			if err := repo.ReplaceLines(ctx, next); err != nil {
				return err
			}
		}
		entry := newHistoryEntry(next, now, action, actor, details)
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) applyUpdate(doc *Document, req UpdateRequest, customer *Customer, lines []Line) []string {
	var changed []string
	if customer != nil {
		doc.Customer = *customer
		changed = append(changed, "customer")
	}
	if d := req.IssueDate.value(); d != nil {
		doc.IssueDate = *d
		changed = append(changed, "issue_date")
	}
	if req.ValidUntil != nil || req.DueDate != nil {
		changed = append(changed, "dates")
	}
	if req.Message != nil {
		doc.Message = strings.TrimSpace(*req.Message)
		changed = append(changed, "message")
	}
	if req.PaymentTerms != nil {
		doc.PaymentTerms = strings.TrimSpace(*req.PaymentTerms)
		changed = append(changed, "payment_terms")
	}
	if req.Discount != nil {
		doc.Discount = req.Discount.Normalized()
		changed = append(changed, "discount")
	}
	if lines != nil {
		doc.Lines = lines
		changed = append(changed, "lines")
	}
	return changed
}

// ChangeStatus performs a staff transition. The reason is kept on rejections and
// change requests and always written to the history entry.
func (s *Service) ChangeStatus(ctx context.Context, kind Kind, id int64, req StatusRequest, actor shared.Actor) (*Document, error) {
	to := Status(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if to == StatusOverdue {
		return nil, fmt.Errorf("%w: overdue is derived from the due date", shared.ErrInvalidState)
	}
	reason := strings.TrimSpace(req.Reason)
	if to == StatusChangeRequested && reason == "" {
		return nil, shared.Validation("reason", "describe the requested changes")
	}

	var updated *Document
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := loadKind(ctx, repo, kind, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != doc.Version {
			return fmt.Errorf("%w: %s is at version %d", shared.ErrConcurrencyConflict, doc.Reference, doc.Version)
		}
		from = doc.Status
		updated, err = s.transition(ctx, repo, doc, to, actor, reason, recordReason(to, reason))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(updated, from, actor)
	return updated, nil
}

func recordReason(to Status, reason string) func(*Document) {
	return func(doc *Document) {
		switch to {
		case StatusRejected:
			doc.RejectionReason = reason
		case StatusChangeRequested:
			doc.ChangeRequest = reason
		}
	}
}

// transition checks the guard, moves doc to the target status, stamps its date,
// saves with the version check and appends exactly one history entry. It must run
// inside a repository transaction. doc is left untouched on failure.
func (s *Service) transition(ctx context.Context, repo Repository, doc *Document, to Status, actor shared.Actor, details string, mutate func(*Document)) (*Document, error) {
	machine := machineFor(doc.Kind)
	if err := machine.Check(doc, to); err != nil {
		return nil, err
	}

	now := s.now()
	next := doc.Clone()
	from := next.Status
	next.Status = to
	stamp(next, to, now)
	if mutate != nil {
		mutate(next)
	}
	next.UpdatedAt = now

	if err := repo.Update(ctx, next); err != nil {
		return nil, err
	}
	entry := newHistoryEntry(next, now, actionFor(to), actor, details)
	entry.FromStatus = from
	entry.ToStatus = to
	if err := repo.AppendHistory(ctx, &entry); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) transitioned(doc *Document, from Status, actor shared.Actor) {
	s.observer.ObserveTransition(string(doc.Kind), string(from), string(doc.Status), actor.Guest)
	s.logger.Info("document transition",
		slog.String("kind", string(doc.Kind)),
		slog.Int64("id", doc.ID),
		slog.String("reference", doc.Reference),
		slog.String("from", string(from)),
		slog.String("to", string(doc.Status)),
		slog.String("actor", actor.String()),
	)
}

// Send moves a document to Sent and queues its delivery. Documents already sent
// are delivered again without a transition.
func (s *Service) Send(ctx context.Context, kind Kind, id int64, req SendRequest, actor shared.Actor) (*Document, error) {
	var (
		result *Document
		from   Status
		moved  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := loadKind(ctx, repo, kind, id)
		if err != nil {
			return err
		}
		if recipient(doc, req.To) == "" {
			return shared.Validation("to", "a recipient email is required")
		}
		if doc.Status == StatusSent || doc.Status == StatusViewed {
			result = doc
			return nil
		}
		from = doc.Status
		result, err = s.transition(ctx, repo, doc, StatusSent, actor, "", nil)
		moved = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if moved {
		s.transitioned(result, from, actor)
	}
	if err := s.enqueue(ctx, result, recipient(result, req.To), false); err != nil {
		return result, err
	}
	return result, nil
}

func recipient(doc *Document, to string) string {
	if to = strings.TrimSpace(to); to != "" {
		return to
	}
	return doc.Customer.ContactEmail()
}

func (s *Service) enqueue(ctx context.Context, doc *Document, to string, reminder bool) error {
	if s.queue == nil {
		s.logger.Warn("delivery queue not configured", slog.Int64("id", doc.ID))
		return nil
	}
	err := s.queue.EnqueueDelivery(ctx, DeliveryRequest{Kind: doc.Kind, DocumentID: doc.ID, To: to, Reminder: reminder})
	if err != nil {
		return fmt.Errorf("queue delivery of %s: %w", doc.Reference, err)
	}
	return nil
}

// RegisterPayment adds a payment to an invoice and marks it Paid once settled.
func (s *Service) RegisterPayment(ctx context.Context, invoiceID int64, req PaymentRequest, actor shared.Actor) (*Document, error) {
	amount := pricing.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, shared.Validation("amount", "must be positive")
	}

	var (
		result *Document
		from   Status
		paid   bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := loadKind(ctx, repo, KindInvoice, invoiceID)
		if err != nil {
			return err
		}
		if doc.IsTerminal() {
			return alreadyProcessedError{status: doc.Status}
		}
		if amount.GreaterThan(doc.Balance()) {
			return shared.Validation("amount", "exceeds the outstanding balance %s", doc.Balance().StringFixed(2))
		}

		now := s.now()
		next := doc.Clone()
		next.AmountPaid = next.AmountPaid.Add(amount)
		next.UpdatedAt = now
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		details := paymentDetails(amount, next.Currency, req.Reference)
		entry := newHistoryEntry(next, now, ActionPaymentRecorded, actor, details)
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return err
		}
		result = next

		if next.AmountPaid.GreaterThanOrEqual(next.TotalTTC) {
			from = next.Status
			result, err = s.transition(ctx, repo, next, StatusPaid, actor, details, nil)
			paid = err == nil
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if paid {
		s.transitioned(result, from, actor)
	}
	return result, nil
}

func paymentDetails(amount decimal.Decimal, currency, reference string) string {
	details := amount.StringFixed(2) + " " + currency
	if ref := strings.TrimSpace(reference); ref != "" {
		details += " (" + ref + ")"
	}
	return details
}

// RecordReminder stamps the reminder bookkeeping of an overdue invoice and queues
// a reminder email when a recipient is known.
func (s *Service) RecordReminder(ctx context.Context, invoiceID int64) (*Document, error) {
	actor := shared.SystemActor()
	var result *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := loadKind(ctx, repo, KindInvoice, invoiceID)
		if err != nil {
			return err
		}
		now := s.now()
		if !doc.IsOverdue(now) {
			return fmt.Errorf("%w: %s is not overdue", shared.ErrInvalidState, doc.Reference)
		}
		next := doc.Clone()
		next.ReminderCount++
		next.LastReminderSent = &now
		next.UpdatedAt = now
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		entry := newHistoryEntry(next, now, ActionReminderSent, actor, fmt.Sprintf("reminder #%d", next.ReminderCount))
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	to := result.Customer.ContactEmail()
	if to == "" {
		s.logger.Info("reminder recorded without recipient", slog.String("reference", result.Reference))
		return result, nil
	}
	if err := s.enqueue(ctx, result, to, true); err != nil {
		return result, err
	}
	return result, nil
}

// ListOverdue returns invoices due for a reminder: past due and not reminded
// within the given interval.
func (s *Service) ListOverdue(ctx context.Context, interval time.Duration, limit int) ([]Document, error) {
	now := s.now()
	return s.repo.ListOverdue(ctx, now, now.Add(-interval), limit)
}

// View builds the presentation model of doc.
func (s *Service) View(doc *Document) DocumentView {
	return NewDocumentView(doc, s.now(), s.cfg.PortalBaseURL)
}

// PDF renders a document through the configured renderer.
func (s *Service) PDF(ctx context.Context, kind Kind, id int64) ([]byte, string, error) {
	doc, err := loadKind(ctx, s.repo, kind, id)
	if err != nil {
		return nil, "", err
	}
	return s.render(ctx, doc)
}

func (s *Service) render(ctx context.Context, doc *Document) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", errors.New("commerce: pdf renderer not configured")
	}
	view := s.View(doc)
	var (
		pdf []byte
		err error
	)
	if doc.Kind == KindInvoice {
		pdf, err = s.renderer.RenderInvoicePDF(ctx, view)
	} else {
		pdf, err = s.renderer.RenderQuotePDF(ctx, view)
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", doc.Reference, err)
	}
	return pdf, doc.Reference + ".pdf", nil
}
