package commerce

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/commerce/pricing"
)

// Date accepts either 2006-01-02 or RFC3339 in JSON bodies.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d *Date) value() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := dateOnly(d.Time)
	return &t
}

// CustomerInput carries either a client id or guest contact details.
type CustomerInput struct {
	ClientID *int64 `json:"client_id" validate:"omitempty,gt=0"`
	Name     string `json:"name" validate:"max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=64"`
}

func (c CustomerInput) customer() Customer {
	if c.ClientID != nil {
		return Customer{
			Kind:     CustomerRegistered,
			ClientID: c.ClientID,
			Name:     strings.TrimSpace(c.Name),
			Email:    strings.TrimSpace(c.Email),
			Phone:    strings.TrimSpace(c.Phone),
		}
	}
	guest := GuestCustomer(c.Name, c.Email, c.Phone)
	if guest.Name == "" && guest.Email == "" && guest.Phone == "" {
		return Customer{}
	}
	return guest
}

// LineInput describes one line. With a product id, empty fields are filled from the catalog.
type LineInput struct {
	Type        LineType         `json:"type"`
	ProductID   *int64           `json:"product_id" validate:"omitempty,gt=0"`
	Description string           `json:"description" validate:"max=2000"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit" validate:"max=32"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	VATRate     *decimal.Decimal `json:"vat_rate"`
	Position    int              `json:"position" validate:"gte=0"`
}

// CreateRequest creates a quote or an invoice in Draft.
type CreateRequest struct {
	Customer     CustomerInput        `json:"customer"`
	IssueDate    *Date                `json:"issue_date"`
	ValidUntil   *Date                `json:"valid_until"`
	DueDate      *Date                `json:"due_date"`
	Message      string               `json:"message" validate:"max=4000"`
	PaymentTerms string               `json:"payment_terms" validate:"max=1000"`
	Currency     string               `json:"currency" validate:"omitempty,len=3,alpha"`
	Discount     pricing.DiscountSpec `json:"discount"`
	Lines        []LineInput          `json:"lines" validate:"max=500,dive"`
}

// UpdateRequest changes a document. Nil fields are left as they are.
type UpdateRequest struct {
	Customer     *CustomerInput        `json:"customer"`
	IssueDate    *Date                 `json:"issue_date"`
	ValidUntil   *Date                 `json:"valid_until"`
	DueDate      *Date                 `json:"due_date"`
	Message      *string               `json:"message" validate:"omitempty,max=4000"`
	PaymentTerms *string               `json:"payment_terms" validate:"omitempty,max=1000"`
	Discount     *pricing.DiscountSpec `json:"discount"`
	Lines        *[]LineInput          `json:"lines" validate:"omitempty,max=500,dive"`
	// Version, when set, must match the stored version.
	Version  *int64 `json:"version"`
	Override bool   `json:"override"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// StatusRequest is a staff status change.
type StatusRequest struct {
	Status  Status `json:"status" validate:"required"`
	Reason  string `json:"reason" validate:"max=2000"`
	Version *int64 `json:"version"`
}

// SendRequest delivers a document by email.
type SendRequest struct {
	To string `json:"to" validate:"omitempty,email"`
}

// PaymentRequest records money received against an invoice.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=255"`
}

// DecisionRequest carries the free text of a public reject or change request.
type DecisionRequest struct {
	Reason  string `json:"reason" validate:"max=2000"`
	Comment string `json:"comment" validate:"max=2000"`
}
