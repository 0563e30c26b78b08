package commerce

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/commerce/pricing"
)

// DocumentView is the fully computed, recipient facing rendition of a document.
// It never exposes internal identifiers.
type DocumentView struct {
	Kind            Kind                 `json:"kind"`
	Reference       string               `json:"reference"`
	Status          Status               `json:"status"`
	DisplayStatus   Status               `json:"display_status"`
	Overdue         bool                 `json:"overdue"`
	Customer        CustomerView         `json:"customer"`
	IssueDate       time.Time            `json:"issue_date"`
	ValidUntil      *time.Time           `json:"valid_until,omitempty"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	Message         string               `json:"message,omitempty"`
	PaymentTerms    string               `json:"payment_terms,omitempty"`
	Currency        string               `json:"currency"`
	Discount        pricing.DiscountSpec `json:"discount"`
	Lines           []LineView           `json:"lines"`
	Totals          TotalsView           `json:"totals"`
	DateSent        *time.Time           `json:"date_sent,omitempty"`
	DateViewed      *time.Time           `json:"date_viewed,omitempty"`
	DateAccepted    *time.Time           `json:"date_accepted,omitempty"`
	DateRejected    *time.Time           `json:"date_rejected,omitempty"`
	DatePaid        *time.Time           `json:"date_paid,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	ChangeRequest   string               `json:"change_request,omitempty"`
	PublicURL       string               `json:"public_url,omitempty"`
	Actions         []string             `json:"actions"`
}

// CustomerView shows the buyer without internal references.
type CustomerView struct {
	Registered bool   `json:"registered"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// LineView is one rendered line with rounded amounts.
type LineView struct {
	Position    int             `json:"position"`
	Type        LineType        `json:"type"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	GrossHT     decimal.Decimal `json:"gross_ht"`
	Discount    decimal.Decimal `json:"discount"`
	HT          decimal.Decimal `json:"ht"`
	VAT         decimal.Decimal `json:"vat"`
	TTC         decimal.Decimal `json:"ttc"`
}

// TotalsView summarises the document amounts.
type TotalsView struct {
	GrossHT    decimal.Decimal `json:"gross_ht"`
	Discount   decimal.Decimal `json:"discount"`
	TotalHT    decimal.Decimal `json:"total_ht"`
	TotalTVA   decimal.Decimal `json:"total_tva"`
	TotalTTC   decimal.Decimal `json:"total_ttc"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Balance    decimal.Decimal `json:"balance"`
}

// Public actions offered on a quote view.
const (
	ViewActionAccept         = "accept"
	ViewActionReject         = "reject"
	ViewActionRequestChanges = "request-changes"
)

// NewDocumentView renders doc as of now. portalBase may be empty.
func NewDocumentView(doc *Document, now time.Time, portalBase string) DocumentView {
	view := DocumentView{
		Kind:            doc.Kind,
		Reference:       doc.Reference,
		Status:          doc.Status,
		DisplayStatus:   doc.DisplayStatus(now),
		Overdue:         doc.IsOverdue(now),
		Customer:        customerView(doc.Customer),
		IssueDate:       doc.IssueDate,
		ValidUntil:      doc.ValidUntil,
		DueDate:         doc.DueDate,
		Message:         doc.Message,
		PaymentTerms:    doc.PaymentTerms,
		Currency:        doc.Currency,
		Discount:        doc.Discount,
		DateSent:        doc.DateSent,
		DateViewed:      doc.DateViewed,
		DateAccepted:    doc.DateAccepted,
		DateRejected:    doc.DateRejected,
		DatePaid:        doc.DatePaid,
		RejectionReason: doc.RejectionReason,
		ChangeRequest:   doc.ChangeRequest,
		Totals: TotalsView{
			GrossHT:    doc.GrossHT,
			Discount:   doc.DiscountTotal,
			TotalHT:    doc.TotalHT,
			TotalTVA:   doc.TotalTVA,
			TotalTTC:   doc.TotalTTC,
			AmountPaid: doc.AmountPaid,
			Balance:    doc.Balance(),
		},
		Lines:   make([]LineView, 0, len(doc.Lines)),
		Actions: publicActions(doc),
	}
	if portalBase != "" && doc.PublicToken != "" {
		view.PublicURL = PublicURL(portalBase, doc.Kind, doc.PublicToken)
	}
	for _, line := range doc.Lines {
		view.Lines = append(view.Lines, LineView{
			Position:    line.Position,
			Type:        line.Type,
			Description: line.Description,
			Quantity:    line.Quantity,
			Unit:        line.Unit,
			UnitPrice:   line.UnitPrice,
			VATRate:     line.VATRate,
			GrossHT:     line.Amounts.GrossHT,
			Discount:    line.Amounts.Discount,
			HT:          line.Amounts.HT,
			VAT:         line.Amounts.VAT,
			TTC:         line.Amounts.TTC,
		})
	}
	return view
}

func customerView(c Customer) CustomerView {
	return CustomerView{
		Registered: c.Kind == CustomerRegistered,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
	}
}

func publicActions(doc *Document) []string {
	actions := []string{}
	if doc.Kind != KindQuote || doc.IsTerminal() {
		return actions
	}
	allowed := map[Status]bool{}
	for _, to := range quoteMachine.Allowed(doc.Status) {
		allowed[to] = true
	}
	if allowed[StatusAccepted] {
		actions = append(actions, ViewActionAccept)
	}
	if allowed[StatusRejected] {
		actions = append(actions, ViewActionReject)
	}
	if allowed[StatusChangeRequested] {
		actions = append(actions, ViewActionRequestChanges)
	}
	return actions
}
