package commerce

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/commerce/pricing"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// ============================================================================
// KIND & STATUS
// ============================================================================

// Kind distinguishes quotes from invoices.
type Kind string

const (
	KindQuote   Kind = "QUOTE"
	KindInvoice Kind = "INVOICE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindQuote || k == KindInvoice
}

// ParseKind accepts the singular or plural route segment of a kind.
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "quote", "quotes":
		return KindQuote, true
	case "invoice", "invoices":
		return KindInvoice, true
	}
	return "", false
}

// ReferencePrefix returns the prefix of human readable references.
func (k Kind) ReferencePrefix() string {
	if k == KindInvoice {
		return "FAC"
	}
	return "DEV"
}

// Status is the persisted lifecycle state of a document.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSent            Status = "SENT"
	StatusViewed          Status = "VIEWED"
	StatusAccepted        Status = "ACCEPTED"
	StatusRejected        Status = "REJECTED"
	StatusChangeRequested Status = "CHANGE_REQUESTED"
	StatusPaid            Status = "PAID"
	StatusCancelled       Status = "CANCELLED"
)

// StatusOverdue is derived for display and never stored.
const StatusOverdue Status = "OVERDUE"

// ============================================================================
// CUSTOMER
// ============================================================================

// CustomerKind tags the customer variant.
type CustomerKind string

const (
	CustomerRegistered CustomerKind = "REGISTERED"
	CustomerGuest      CustomerKind = "GUEST"
)

// Customer references either a registered client or a guest buyer.
type Customer struct {
	Kind     CustomerKind `json:"kind"`
	ClientID *int64       `json:"client_id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Email    string       `json:"email,omitempty"`
	Phone    string       `json:"phone,omitempty"`
}

// RegisteredCustomer references a client record.
func RegisteredCustomer(clientID int64) Customer {
	return Customer{Kind: CustomerRegistered, ClientID: &clientID}
}

// GuestCustomer describes a buyer with no client record.
func GuestCustomer(name, email, phone string) Customer {
	return Customer{
		Kind:  CustomerGuest,
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Phone: strings.TrimSpace(phone),
	}
}

// Validate enforces that exactly one variant is populated.
func (c Customer) Validate() error {
	switch c.Kind {
	case CustomerRegistered:
		if c.ClientID == nil || *c.ClientID <= 0 {
			return shared.Validation("customer.client_id", "required for a registered customer")
		}
		if c.Name != "" || c.Email != "" || c.Phone != "" {
			return shared.Validation("customer", "registered customer must not carry guest details")
		}
	case CustomerGuest:
		if c.ClientID != nil {
			return shared.Validation("customer.client_id", "guest customer must not reference a client")
		}
		if c.Name == "" {
			return shared.Validation("customer.name", "required for a guest customer")
		}
	default:
		return shared.Validation("customer", "either a registered client or guest details are required")
	}
	return nil
}

// ContactEmail returns the address documents are delivered to, if known.
func (c Customer) ContactEmail() string {
	if c.Kind == CustomerGuest {
		return c.Email
	}
	return ""
}

// ============================================================================
// LINES
// ============================================================================

// LineType classifies a line.
type LineType = pricing.LineType

const (
	LineItem     = pricing.LineItem
	LineService  = pricing.LineService
	LineText     = pricing.LineText
	LineDiscount = pricing.LineDiscount
)

// Line is one row of a document. Its amounts are derived from the inputs by Recompute.
type Line struct {
	ID          int64              `json:"id"`
	DocumentID  int64              `json:"document_id"`
	Type        LineType           `json:"type"`
	ProductID   *int64             `json:"product_id,omitempty"`
	Description string             `json:"description"`
	Quantity    decimal.Decimal    `json:"quantity"`
	Unit        string             `json:"unit"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	VATRate     decimal.Decimal    `json:"vat_rate"`
	Position    int                `json:"position"`
	Amounts     pricing.LineTotals `json:"amounts"`
}

func (l Line) pricingLine() pricing.Line {
	return pricing.Line{
		Type:      l.Type,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		VATRate:   l.VATRate,
	}
}

// ============================================================================
// DOCUMENT
// ============================================================================

// Document is a quote or an invoice together with the lines it owns.
type Document struct {
	ID           int64                `json:"id"`
	Kind         Kind                 `json:"kind"`
	Reference    string               `json:"reference"`
	Customer     Customer             `json:"customer"`
	IssueDate    time.Time            `json:"issue_date"`
	ValidUntil   *time.Time           `json:"valid_until,omitempty"`
	DueDate      *time.Time           `json:"due_date,omitempty"`
	Status       Status               `json:"status"`
	Message      string               `json:"message,omitempty"`
	PaymentTerms string               `json:"payment_terms,omitempty"`
	Currency     string               `json:"currency"`
	Discount     pricing.DiscountSpec `json:"discount"`

	GrossHT       decimal.Decimal `json:"gross_ht"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TotalHT       decimal.Decimal `json:"total_ht"`
	TotalTVA      decimal.Decimal `json:"total_tva"`
	TotalTTC      decimal.Decimal `json:"total_ttc"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`

	PublicToken string `json:"-"`
	QuoteID     *int64 `json:"quote_id,omitempty"`

	DateSent        *time.Time `json:"date_sent,omitempty"`
	DateViewed      *time.Time `json:"date_viewed,omitempty"`
	DateAccepted    *time.Time `json:"date_accepted,omitempty"`
	DateRejected    *time.Time `json:"date_rejected,omitempty"`
	DatePaid        *time.Time `json:"date_paid,omitempty"`
	DateCancelled   *time.Time `json:"date_cancelled,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ChangeRequest   string     `json:"change_request,omitempty"`

	LastReminderSent *time.Time `json:"last_reminder_sent,omitempty"`
	ReminderCount    int        `json:"reminder_count"`

	Version   int64     `json:"version"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []Line `json:"lines"`
}

// Recompute refreshes document and line amounts from the lines and discount.
// AmountPaid is left untouched.
func (d *Document) Recompute() error {
	input := make([]pricing.Line, len(d.Lines))
	for i, line := range d.Lines {
		input[i] = line.pricingLine()
	}
	totals, err := pricing.Recompute(input, d.Discount, d.Currency)
	if err != nil {
		return err
	}
	d.Discount = d.Discount.Normalized()
	d.GrossHT = totals.GrossHT
	d.DiscountTotal = totals.Discount
	d.TotalHT = totals.TotalHT
	d.TotalTVA = totals.TotalTVA
	d.TotalTTC = totals.TotalTTC
	for i := range d.Lines {
		d.Lines[i].Amounts = totals.Lines[i]
	}
	return nil
}

// deriveLineAmounts fills per-line amounts of a loaded document. Stored totals are kept.
func (d *Document) deriveLineAmounts() {
	input := make([]pricing.Line, len(d.Lines))
	for i, line := range d.Lines {
		input[i] = line.pricingLine()
	}
	totals, err := pricing.Recompute(input, d.Discount, d.Currency)
	if err != nil {
		return
	}
	for i := range d.Lines {
		d.Lines[i].Amounts = totals.Lines[i]
	}
}

// IsTerminal reports whether the document left the editable part of its lifecycle.
func (d *Document) IsTerminal() bool {
	return machineFor(d.Kind).Terminal(d.Status)
}

// IsOverdue reports whether an invoice is past its due date and still open.
func (d *Document) IsOverdue(now time.Time) bool {
	if d.Kind != KindInvoice || d.DueDate == nil {
		return false
	}
	if d.Status == StatusPaid || d.Status == StatusCancelled {
		return false
	}
	return now.After(*d.DueDate)
}

// DisplayStatus folds the derived overdue state into the persisted status.
func (d *Document) DisplayStatus(now time.Time) Status {
	if d.IsOverdue(now) {
		return StatusOverdue
	}
	return d.Status
}

// Balance is the amount still due on an invoice.
func (d *Document) Balance() decimal.Decimal {
	balance := d.TotalTTC.Sub(d.AmountPaid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Customer.ClientID = cloneInt64(d.Customer.ClientID)
	cp.ValidUntil = cloneTime(d.ValidUntil)
	cp.DueDate = cloneTime(d.DueDate)
	cp.QuoteID = cloneInt64(d.QuoteID)
	cp.DateSent = cloneTime(d.DateSent)
	cp.DateViewed = cloneTime(d.DateViewed)
	cp.DateAccepted = cloneTime(d.DateAccepted)
	cp.DateRejected = cloneTime(d.DateRejected)
	cp.DatePaid = cloneTime(d.DatePaid)
	cp.DateCancelled = cloneTime(d.DateCancelled)
	cp.LastReminderSent = cloneTime(d.LastReminderSent)
	if d.Lines != nil {
		cp.Lines = make([]Line, len(d.Lines))
		for i, line := range d.Lines {
			line.ProductID = cloneInt64(line.ProductID)
			cp.Lines[i] = line
		}
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// ListFilter narrows staff document listings.
type ListFilter struct {
	Kind     Kind
	Status   Status
	ClientID *int64
	Search   string
	Limit    int
	Offset   int
}
