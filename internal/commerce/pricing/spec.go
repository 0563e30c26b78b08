// Package pricing computes discounts and HT/TVA/TTC totals for commercial documents.
// Every function is pure; amounts use decimal arithmetic and are rounded only when
// totals are aggregated.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// DiscountType selects how the discount value is interpreted.
type DiscountType string

const (
	DiscountNone        DiscountType = "NONE"
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// DiscountBase selects the amount a discount is computed against.
type DiscountBase string

const (
	BaseBeforeTax DiscountBase = "BEFORE_TAX"
	BaseAfterTax  DiscountBase = "AFTER_TAX"
)

// DiscountScope selects whether a discount applies per line or once per document.
type DiscountScope string

const (
	ScopeWholeDocument DiscountScope = "WHOLE_DOCUMENT"
	ScopePerLine       DiscountScope = "PER_LINE"
)

// DiscountSpec is the single discount configuration carried by a document.
type DiscountSpec struct {
	Type  DiscountType    `json:"type"`
	Base  DiscountBase    `json:"base"`
	Scope DiscountScope   `json:"scope"`
	Value decimal.Decimal `json:"value"`
}

// Normalized fills empty enum fields with their defaults.
func (s DiscountSpec) Normalized() DiscountSpec {
	s.Type = DiscountType(strings.ToUpper(strings.TrimSpace(string(s.Type))))
	s.Base = DiscountBase(strings.ToUpper(strings.TrimSpace(string(s.Base))))
	s.Scope = DiscountScope(strings.ToUpper(strings.TrimSpace(string(s.Scope))))
	if s.Type == "" {
		s.Type = DiscountNone
	}
	if s.Base == "" {
		s.Base = BaseBeforeTax
	}
	if s.Scope == "" {
		s.Scope = ScopeWholeDocument
	}
	return s
}

// Active reports whether the spec removes anything.
func (s DiscountSpec) Active() bool {
	s = s.Normalized()
	return s.Type != DiscountNone && s.Value.IsPositive()
}

// Validate checks the spec without currency context.
func (s DiscountSpec) Validate() error {
	s = s.Normalized()
	switch s.Type {
	case DiscountNone, DiscountPercentage, DiscountFixedAmount:
	default:
		return shared.Validation("discount.type", "unknown discount type %q", s.Type)
	}
	switch s.Base {
	case BaseBeforeTax, BaseAfterTax:
	default:
		return shared.Validation("discount.base", "unknown discount base %q", s.Base)
	}
	switch s.Scope {
	case ScopeWholeDocument, ScopePerLine:
	default:
		return shared.Validation("discount.scope", "unknown discount scope %q", s.Scope)
	}
	if s.Type == DiscountNone {
		return nil
	}
	if s.Value.IsNegative() {
		return shared.Validation("discount.value", "must not be negative")
	}
	if s.Type == DiscountPercentage && s.Value.GreaterThan(hundred) {
		return shared.Validation("discount.value", "percentage must not exceed 100")
	}
	if !fitsScale(s.Value, PricePlaces) {
		return shared.Validation("discount.value", "at most %d decimals allowed", PricePlaces)
	}
	return nil
}

// ValidateFor checks the spec in the context of the document currency.
func (s DiscountSpec) ValidateFor(currency string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Normalized().Type == DiscountFixedAmount && strings.TrimSpace(currency) == "" {
		return shared.Validation("discount.value", "fixed amount discount requires a currency")
	}
	return nil
}

// amountOn returns the raw discount taken from base.
func (s DiscountSpec) amountOn(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	switch s.Type {
	case DiscountPercentage:
		return base.Mul(s.Value).Div(hundred)
	case DiscountFixedAmount:
		return decimal.Min(s.Value, base)
	default:
		return decimal.Zero
	}
}
