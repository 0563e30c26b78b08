package commerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// ConvertToInvoice materialises a Draft invoice from an accepted quote. Lines are
// copied with fresh identities and the discount is kept verbatim. A quote converts
// at most once.
func (s *Service) ConvertToInvoice(ctx context.Context, quoteID int64, actor shared.Actor) (*Document, error) {
	token, err := NewPublicToken()
	if err != nil {
		return nil, err
	}

	var invoice *Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		quote, err := loadKind(ctx, repo, KindQuote, quoteID)
		if err != nil {
			return err
		}
		if quote.Status != StatusAccepted {
			return fmt.Errorf("%w: quote %s is %s, only accepted quotes convert", shared.ErrInvalidState, quote.Reference, quote.Status)
		}
		existing, err := repo.InvoiceForQuote(ctx, quote.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: quote %s was already converted to %s", shared.ErrInvalidState, quote.Reference, existing.Reference)
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}

		now := s.now()
		invoice = invoiceFromQuote(quote, token, now, s.cfg.PaymentDays, actor)
		if err := invoice.Recompute(); err != nil {
			return err
		}
		ref, err := repo.NextReference(ctx, KindInvoice, invoice.IssueDate.Year())
		if err != nil {
			return err
		}
		invoice.Reference = ref
		if err := repo.Insert(ctx, invoice); err != nil {
			return err
		}

		entry := newHistoryEntry(quote, now, ActionConverted, actor, invoice.Reference)
		return repo.AppendHistory(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quote converted",
		slog.Int64("quote_id", quoteID),
		slog.Int64("invoice_id", invoice.ID),
		slog.String("invoice", invoice.Reference),
		slog.String("actor", actor.String()),
	)
	return invoice, nil
}

func invoiceFromQuote(quote *Document, token string, now time.Time, paymentDays int, actor shared.Actor) *Document {
	src := quote.Clone()
	issue := dateOnly(now)
	due := issue.AddDate(0, 0, paymentDays)
	quoteID := quote.ID

	lines := make([]Line, len(src.Lines))
	for i, line := range src.Lines {
		line.ID = 0
		line.DocumentID = 0
		lines[i] = line
	}

	return &Document{
		Kind:         KindInvoice,
		Customer:     src.Customer,
		IssueDate:    issue,
		DueDate:      &due,
		Status:       StatusDraft,
		Message:      src.Message,
		PaymentTerms: src.PaymentTerms,
		Currency:     src.Currency,
		Discount:     src.Discount,
		PublicToken:  token,
		QuoteID:      &quoteID,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        lines,
	}
}
