package pricing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// MinorUnits is the number of decimals kept on rounded money amounts.
const MinorUnits = 2

// Decimals kept by the line and discount columns.
const (
	QuantityPlaces = 4
	PricePlaces    = 4
	RatePlaces     = 2
)

var hundred = decimal.NewFromInt(100)

// LineType classifies a document line.
type LineType string

const (
	LineItem     LineType = "ITEM"
	LineService  LineType = "SERVICE"
	LineText     LineType = "TEXT"
	LineDiscount LineType = "DISCOUNT"
)

// Normalized maps an empty type to LineItem.
func (t LineType) Normalized() LineType {
	t = LineType(strings.ToUpper(strings.TrimSpace(string(t))))
	if t == "" {
		return LineItem
	}
	return t
}

// Valid reports whether t is a known line type.
func (t LineType) Valid() bool {
	switch t.Normalized() {
	case LineItem, LineService, LineText, LineDiscount:
		return true
	}
	return false
}

// Discountable reports whether a document discount can be allocated to the line.
func (t LineType) Discountable() bool {
	n := t.Normalized()
	return n == LineItem || n == LineService
}

// Priced reports whether the line contributes to totals.
func (t LineType) Priced() bool {
	return t.Normalized() != LineText
}

// Line is the pricing view of a document line.
type Line struct {
	Type      LineType
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   decimal.Decimal // percent, 20 means 20%
}

// HT returns the undiscounted amount before tax. Discount lines are negative.
func (l Line) HT() decimal.Decimal {
	switch l.Type.Normalized() {
	case LineText:
		return decimal.Zero
	case LineDiscount:
		return l.Quantity.Mul(l.UnitPrice).Neg()
	default:
		return l.Quantity.Mul(l.UnitPrice)
	}
}

// VAT returns the undiscounted tax amount.
func (l Line) VAT() decimal.Decimal {
	return l.HT().Mul(l.VATRate).Div(hundred)
}

// Allocation holds the exact, unrounded discount outcome for one line.
type Allocation struct {
	GrossHT  decimal.Decimal
	GrossVAT decimal.Decimal
	// Base is the amount the discount was computed against; zero for lines
	// that take no part in the discount.
	Base     decimal.Decimal
	Discount decimal.Decimal
	HT       decimal.Decimal
	VAT      decimal.Decimal
}

// DiscountResult is the output of ComputeDiscount.
type DiscountResult struct {
	Lines            []Allocation
	DocumentDiscount decimal.Decimal
}

// ComputeDiscount applies spec to lines. Per-line values stay exact; rounding is
// left to the totals aggregation. A whole-document discount is rounded to the
// minor unit before proration so the allocations sum to it exactly.
func ComputeDiscount(lines []Line, spec DiscountSpec) (DiscountResult, error) {
	if err := spec.Validate(); err != nil {
		return DiscountResult{}, err
	}
	if err := ValidateLines(lines); err != nil {
		return DiscountResult{}, err
	}
	spec = spec.Normalized()

	result := DiscountResult{
		Lines:            make([]Allocation, len(lines)),
		DocumentDiscount: decimal.Zero,
	}
	for i, line := range lines {
		ht := line.HT()
		vat := line.VAT()
		alloc := Allocation{
			GrossHT:  ht,
			GrossVAT: vat,
			Base:     decimal.Zero,
			Discount: decimal.Zero,
			HT:       ht,
			VAT:      vat,
		}
		if line.Type.Discountable() {
			alloc.Base = ht
			if spec.Base == BaseAfterTax {
				alloc.Base = ht.Add(vat)
			}
		}
		result.Lines[i] = alloc
	}
	if !spec.Active() {
		return result, nil
	}

	var amounts []decimal.Decimal
	switch spec.Scope {
	case ScopePerLine:
		amounts = make([]decimal.Decimal, len(lines))
		for i, alloc := range result.Lines {
			amounts[i] = spec.amountOn(alloc.Base)
		}
	default:
		bases := make([]decimal.Decimal, len(lines))
		total := decimal.Zero
		for i, alloc := range result.Lines {
			bases[i] = alloc.Base
			total = total.Add(alloc.Base)
		}
		amount := spec.amountOn(total).Round(MinorUnits)
		if amount.GreaterThan(total) {
			amount = total.Truncate(MinorUnits)
		}
		amounts = Prorate(amount, bases)
	}

	for i, line := range lines {
		if amounts[i].IsZero() {
			continue
		}
		result.Lines[i] = applyDiscount(result.Lines[i], line.VATRate, amounts[i], spec.Base)
		result.DocumentDiscount = result.DocumentDiscount.Add(amounts[i])
	}
	return result, nil
}

// Prorate splits amount across bases in proportion to each base. Every share but
// the last is rounded to the minor unit; the last positive base absorbs the
// residual so the shares always sum to amount.
func Prorate(amount decimal.Decimal, bases []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(bases))
	total := decimal.Zero
	last := -1
	for i, b := range bases {
		shares[i] = decimal.Zero
		if b.IsPositive() {
			total = total.Add(b)
			last = i
		}
	}
	if last < 0 || amount.IsZero() {
		return shares
	}
	allocated := decimal.Zero
	for i, b := range bases {
		if !b.IsPositive() || i == last {
			continue
		}
		share := amount.Mul(b).Div(total).Round(MinorUnits)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[last] = amount.Sub(allocated)
	return shares
}

func applyDiscount(alloc Allocation, rate, discount decimal.Decimal, base DiscountBase) Allocation {
	alloc.Discount = discount
	if base == BaseAfterTax {
		ttc := alloc.GrossHT.Add(alloc.GrossVAT).Sub(discount)
		alloc.HT = ttc.Div(decimal.NewFromInt(1).Add(rate.Div(hundred)))
		alloc.VAT = ttc.Sub(alloc.HT)
		return alloc
	}
	alloc.HT = alloc.GrossHT.Sub(discount)
	alloc.VAT = alloc.HT.Mul(rate).Div(hundred)
	return alloc
}

// ValidateLines rejects lines the calculator cannot price.
func ValidateLines(lines []Line) error {
	for i, line := range lines {
		if !line.Type.Valid() {
			return shared.Validation(fieldName(i, "type"), "unknown line type %q", line.Type)
		}
		if !line.Type.Priced() {
			continue
		}
		if !line.Quantity.IsPositive() {
			return shared.Validation(fieldName(i, "quantity"), "must be greater than zero")
		}
		if !fitsScale(line.Quantity, QuantityPlaces) {
			return shared.Validation(fieldName(i, "quantity"), "at most %d decimals allowed", QuantityPlaces)
		}
		if line.UnitPrice.IsNegative() {
			return shared.Validation(fieldName(i, "unit_price"), "must not be negative")
		}
		if !fitsScale(line.UnitPrice, PricePlaces) {
			return shared.Validation(fieldName(i, "unit_price"), "at most %d decimals allowed", PricePlaces)
		}
		if line.VATRate.IsNegative() || line.VATRate.GreaterThan(hundred) {
			return shared.Validation(fieldName(i, "vat_rate"), "must be between 0 and 100")
		}
		if !fitsScale(line.VATRate, RatePlaces) {
			return shared.Validation(fieldName(i, "vat_rate"), "at most %d decimals allowed", RatePlaces)
		}
	}
	return nil
}

// fitsScale reports whether d has no significant digits beyond places.
// Trailing zeros ("1.50000") are accepted.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Exponent() >= -places || d.Equal(d.Truncate(places))
}

func fieldName(i int, field string) string {
	return "lines[" + strconv.Itoa(i) + "]." + field
}
