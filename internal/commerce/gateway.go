package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// errDocumentNotFound is the only failure a token lookup reports, whatever the cause.
var errDocumentNotFound = fmt.Errorf("document %w", shared.ErrNotFound)

const maxDecisionText = 2000

// Gateway is the anonymous, token keyed surface of the lifecycle. Every action
// is recorded as the guest actor.
type Gateway struct {
	svc *Service
}

// NewGateway constructs a Gateway over the service collaborators.
func NewGateway(svc *Service) *Gateway {
	return &Gateway{svc: svc}
}

// lookup resolves a token of kind. Malformed, unknown and other-kind tokens
// produce the same error.
func (g *Gateway) lookup(ctx context.Context, repo Repository, kind Kind, token string) (*Document, error) {
	if !kind.Valid() || !wellFormedToken(token) {
		return nil, errDocumentNotFound
	}
	doc, err := repo.GetByToken(ctx, kind, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errDocumentNotFound
		}
		return nil, err
	}
	if doc.Kind != kind || !tokensEqual(doc.PublicToken, token) {
		return nil, errDocumentNotFound
	}
	return doc, nil
}

// FetchByToken returns the document view. The first access after a send moves the
// document to Viewed and stamps DateViewed; any later access is read-only.
func (g *Gateway) FetchByToken(ctx context.Context, kind Kind, token string) (DocumentView, error) {
	var (
		doc    *Document
		viewed bool
	)
	err := g.svc.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := g.lookup(ctx, repo, kind, token)
		if err != nil {
			return err
		}
		doc = current
		if current.Status != StatusSent {
			return nil
		}
		next, err := g.svc.transition(ctx, repo, current, StatusViewed, shared.GuestActor(), "", nil)
		if err != nil {
			return err
		}
		doc, viewed = next, true
		return nil
	})
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		// Another request recorded the view or a decision first.
		doc, err = g.lookup(ctx, g.svc.repo, kind, token)
		viewed = false
	}
	g.svc.observer.ObservePublicLookup(string(kind), err == nil)
	if err != nil {
		return DocumentView{}, err
	}
	if viewed {
		g.svc.transitioned(doc, StatusSent, shared.GuestActor())
	}
	return g.svc.View(doc), nil
}

// Accept accepts a quote on behalf of its recipient.
func (g *Gateway) Accept(ctx context.Context, token string) (DocumentView, error) {
	return g.decide(ctx, token, StatusAccepted, "", nil)
}

// Reject rejects a quote, keeping the optional reason on the quote and in its history.
func (g *Gateway) Reject(ctx context.Context, token, reason string) (DocumentView, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxDecisionText {
		return DocumentView{}, shared.Validation("reason", "must be at most %d characters", maxDecisionText)
	}
	return g.decide(ctx, token, StatusRejected, reason, recordReason(StatusRejected, reason))
}

// RequestChanges asks staff to revise a quote.
func (g *Gateway) RequestChanges(ctx context.Context, token, comment string) (DocumentView, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return DocumentView{}, shared.Validation("comment", "describe the requested changes")
	}
	if len(comment) > maxDecisionText {
		return DocumentView{}, shared.Validation("comment", "must be at most %d characters", maxDecisionText)
	}
	return g.decide(ctx, token, StatusChangeRequested, comment, recordReason(StatusChangeRequested, comment))
}

func (g *Gateway) decide(ctx context.Context, token string, to Status, details string, mutate func(*Document)) (DocumentView, error) {
	actor := shared.GuestActor()
	var (
		updated *Document
		from    Status
	)
	err := g.svc.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := g.lookup(ctx, repo, KindQuote, token)
		if err != nil {
			return err
		}
		from = doc.Status
		updated, err = g.svc.transition(ctx, repo, doc, to, actor, details, mutate)
		return err
	})
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		current, lerr := g.lookup(ctx, g.svc.repo, KindQuote, token)
		if lerr == nil && current.IsTerminal() {
			return DocumentView{}, alreadyProcessedError{status: current.Status}
		}
		return DocumentView{}, err
	}
	if err != nil {
		return DocumentView{}, err
	}
	g.svc.transitioned(updated, from, actor)
	return g.svc.View(updated), nil
}

// QuotePDF renders the quote a token points at.
func (g *Gateway) QuotePDF(ctx context.Context, token string) ([]byte, string, error) {
	doc, err := g.lookup(ctx, g.svc.repo, KindQuote, token)
	if err != nil {
		return nil, "", err
	}
	return g.svc.render(ctx, doc)
}
