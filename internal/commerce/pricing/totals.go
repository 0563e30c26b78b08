package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// LineTotals carries the rounded, displayable amounts of one line.
type LineTotals struct {
	GrossHT  decimal.Decimal `json:"gross_ht"`
	Discount decimal.Decimal `json:"discount"`
	HT       decimal.Decimal `json:"ht"`
	VAT      decimal.Decimal `json:"vat"`
	TTC      decimal.Decimal `json:"ttc"`
}

// Totals are the document level figures. TotalTTC is always TotalHT + TotalTVA.
type Totals struct {
	GrossHT  decimal.Decimal `json:"gross_ht"`
	Discount decimal.Decimal `json:"discount"`
	TotalHT  decimal.Decimal `json:"total_ht"`
	TotalTVA decimal.Decimal `json:"total_tva"`
	TotalTTC decimal.Decimal `json:"total_ttc"`
	Lines    []LineTotals    `json:"lines"`
}

// Round rounds half away from zero to the minor unit, which is half-up for the
// non-negative amounts totals produce.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

// Recompute runs the discount engine and aggregates HT/TVA/TTC. The exact per-line
// values are summed before a single rounding; the rounded per-line figures are then
// reconciled against the totals by moving any residual cent onto the last priced line.
func Recompute(lines []Line, spec DiscountSpec, currency string) (Totals, error) {
	if err := spec.ValidateFor(currency); err != nil {
		return Totals{}, err
	}
	result, err := ComputeDiscount(lines, spec)
	if err != nil {
		return Totals{}, err
	}

	gross, ht, vat := decimal.Zero, decimal.Zero, decimal.Zero
	last := -1
	for i, alloc := range result.Lines {
		gross = gross.Add(alloc.GrossHT)
		ht = ht.Add(alloc.HT)
		vat = vat.Add(alloc.VAT)
		if lines[i].Type.Priced() {
			last = i
		}
	}

	totals := Totals{
		GrossHT:  Round(gross),
		Discount: Round(result.DocumentDiscount),
		TotalHT:  Round(ht),
		TotalTVA: Round(vat),
		Lines:    make([]LineTotals, len(lines)),
	}
	totals.TotalTTC = totals.TotalHT.Add(totals.TotalTVA)
	if totals.TotalHT.IsNegative() {
		return Totals{}, shared.Validation("lines", "discount lines exceed the document subtotal")
	}

	sumGross, sumDiscount, sumHT, sumVAT := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, alloc := range result.Lines {
		lt := LineTotals{
			GrossHT:  decimal.Zero,
			Discount: decimal.Zero,
			HT:       decimal.Zero,
			VAT:      decimal.Zero,
			TTC:      decimal.Zero,
		}
		switch {
		case !lines[i].Type.Priced():
		case i == last:
			lt.GrossHT = totals.GrossHT.Sub(sumGross)
			lt.Discount = totals.Discount.Sub(sumDiscount)
			lt.HT = totals.TotalHT.Sub(sumHT)
			lt.VAT = totals.TotalTVA.Sub(sumVAT)
		default:
			lt.GrossHT = Round(alloc.GrossHT)
			lt.Discount = Round(alloc.Discount)
			lt.HT = Round(alloc.HT)
			lt.VAT = Round(alloc.VAT)
			sumGross = sumGross.Add(lt.GrossHT)
			sumDiscount = sumDiscount.Add(lt.Discount)
			sumHT = sumHT.Add(lt.HT)
			sumVAT = sumVAT.Add(lt.VAT)
		}
		lt.TTC = lt.HT.Add(lt.VAT)
		totals.Lines[i] = lt
	}
	return totals, nil
}
