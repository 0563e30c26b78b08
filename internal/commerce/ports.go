package commerce

import (
	"context"

	"github.com/odyssey-erp/freightdesk/internal/catalog"
)

// ProductLookup resolves catalog products for line snapshots.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// DeliveryRequest asks the worker to render and email a document.
type DeliveryRequest struct {
	Kind       Kind   `json:"kind"`
	DocumentID int64  `json:"document_id"`
	To         string `json:"to"`
	Reminder   bool   `json:"reminder,omitempty"`
}

// DeliveryQueue hands delivery work to the background worker.
type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, req DeliveryRequest) error
}

// Renderer turns a computed document view into a PDF.
type Renderer interface {
	RenderQuotePDF(ctx context.Context, view DocumentView) ([]byte, error)
	RenderInvoicePDF(ctx context.Context, view DocumentView) ([]byte, error)
}

// Attachment is a file carried by an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Observer receives lifecycle signals for metrics.
type Observer interface {
	ObserveTransition(kind, from, to string, guest bool)
	ObservePublicLookup(kind string, found bool)
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(string, string, string, bool) {}
func (noopObserver) ObservePublicLookup(string, bool) {}
