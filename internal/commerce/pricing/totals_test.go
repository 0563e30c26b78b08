package pricing

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, dec(want).StringFixed(2), got.StringFixed(2))
}

func twoLines() []Line {
	return []Line{
		{Type: LineItem, Quantity: dec("2"), UnitPrice: dec("100"), VATRate: dec("20")},
		{Type: LineService, Quantity: dec("1"), UnitPrice: dec("50"), VATRate: dec("10")},
	}
}

func TestRecomputePercentageWholeDocument(t *testing.T) {
	spec := DiscountSpec{Type: DiscountPercentage, Base: BaseBeforeTax, Scope: ScopeWholeDocument, Value: dec("10")}

	totals, err := Recompute(twoLines(), spec, "EUR")
	require.NoError(t, err)

	requireMoney(t, "250", totals.GrossHT)
	requireMoney(t, "25", totals.Discount)
	requireMoney(t, "225", totals.TotalHT)
	requireMoney(t, "40.5", totals.TotalTVA)
	requireMoney(t, "265.5", totals.TotalTTC)

	requireMoney(t, "20", totals.Lines[0].Discount)
	requireMoney(t, "5", totals.Lines[1].Discount)
	requireMoney(t, "180", totals.Lines[0].HT)
	requireMoney(t, "36", totals.Lines[0].VAT)
	requireMoney(t, "45", totals.Lines[1].HT)
	requireMoney(t, "4.5", totals.Lines[1].VAT)
}

func TestRecomputeFixedAmountCappedAtBase(t *testing.T) {
	spec := DiscountSpec{Type: DiscountFixedAmount, Base: BaseBeforeTax, Scope: ScopeWholeDocument, Value: dec("1000")}

	totals, err := Recompute(twoLines(), spec, "EUR")
	require.NoError(t, err)

	requireMoney(t, "250", totals.Discount)
	requireMoney(t, "0", totals.TotalHT)
	requireMoney(t, "0", totals.TotalTVA)
	requireMoney(t, "0", totals.TotalTTC)
}

func TestRecomputeFixedAmountPerLineCapsEachLine(t *testing.T) {
	spec := DiscountSpec{Type: DiscountFixedAmount, Scope: ScopePerLine, Value: dec("80")}

	totals, err := Recompute(twoLines(), spec, "EUR")
	require.NoError(t, err)

	// 80 off the 200 line, the 50 line is capped at 50.
	requireMoney(t, "80", totals.Lines[0].Discount)
	requireMoney(t, "50", totals.Lines[1].Discount)
	requireMoney(t, "120", totals.TotalHT)
	requireMoney(t, "24", totals.TotalTVA)
	requireMoney(t, "144", totals.TotalTTC)
}

func TestRecomputeAfterTaxSplitsBackWithLineRate(t *testing.T) {
	lines := []Line{{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("100"), VATRate: dec("20")}}
	spec := DiscountSpec{Type: DiscountFixedAmount, Base: BaseAfterTax, Value: dec("12")}

	totals, err := Recompute(lines, spec, "EUR")
	require.NoError(t, err)

	// TTC 120 - 12 = 108, split back at 20%.
	requireMoney(t, "108", totals.TotalTTC)
	requireMoney(t, "90", totals.TotalHT)
	requireMoney(t, "18", totals.TotalTVA)
}

func TestRecomputeNoLines(t *testing.T) {
	spec := DiscountSpec{Type: DiscountPercentage, Value: dec("15")}

	totals, err := Recompute(nil, spec, "EUR")
	require.NoError(t, err)
	requireMoney(t, "0", totals.TotalHT)
	requireMoney(t, "0", totals.TotalTVA)
	requireMoney(t, "0", totals.TotalTTC)
	require.Empty(t, totals.Lines)
}

func TestRecomputeTextAndDiscountLines(t *testing.T) {
	lines := []Line{
		{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("100"), VATRate: dec("20")},
		{Type: LineText},
		{Type: LineDiscount, Quantity: dec("1"), UnitPrice: dec("10"), VATRate: dec("20")},
	}
	spec := DiscountSpec{Type: DiscountPercentage, Value: dec("10")}

	totals, err := Recompute(lines, spec, "EUR")
	require.NoError(t, err)

	// Document discount only applies to the item line.
	requireMoney(t, "10", totals.Discount)
	requireMoney(t, "80", totals.TotalHT)
	requireMoney(t, "16", totals.TotalTVA)
	requireMoney(t, "0", totals.Lines[1].HT)
	requireMoney(t, "0", totals.Lines[2].Discount)
	requireMoney(t, "-10", totals.Lines[2].HT)
}

func TestRecomputeRejectsDiscountLinesAboveSubtotal(t *testing.T) {
	lines := []Line{
		{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("10"), VATRate: dec("20")},
		{Type: LineDiscount, Quantity: dec("1"), UnitPrice: dec("25"), VATRate: dec("20")},
	}
	_, err := Recompute(lines, DiscountSpec{}, "EUR")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecomputeValidation(t *testing.T) {
	cases := map[string]struct {
		lines    []Line
		spec     DiscountSpec
		currency string
	}{
		"negative value": {
			lines: twoLines(),
			spec:  DiscountSpec{Type: DiscountPercentage, Value: dec("-1")},
		},
		"percentage above 100": {
			lines: twoLines(),
			spec:  DiscountSpec{Type: DiscountPercentage, Value: dec("100.01")},
		},
		"fixed amount without currency": {
			lines: twoLines(),
			spec:  DiscountSpec{Type: DiscountFixedAmount, Value: dec("5")},
		},
		"unknown scope": {
			lines: twoLines(),
			spec:  DiscountSpec{Type: DiscountPercentage, Scope: "SOMETIMES", Value: dec("5")},
		},
		"zero quantity": {
			lines: []Line{{Type: LineItem, Quantity: dec("0"), UnitPrice: dec("10"), VATRate: dec("20")}},
		},
		"negative quantity": {
			lines: []Line{{Type: LineService, Quantity: dec("-2"), UnitPrice: dec("10"), VATRate: dec("20")}},
		},
		"vat rate above 100": {
			lines: []Line{{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("10"), VATRate: dec("120")}},
		},
		"unknown line type": {
			lines: []Line{{Type: "PALLET", Quantity: dec("1"), UnitPrice: dec("10")}},
		},
		"quantity beyond four decimals": {
			lines: []Line{{Type: LineItem, Quantity: dec("1.00001"), UnitPrice: dec("10"), VATRate: dec("20")}},
		},
		"unit price beyond four decimals": {
			lines: []Line{{Type: LineItem, Quantity: dec("1000"), UnitPrice: dec("0.12345"), VATRate: dec("20")}},
		},
		"vat rate beyond two decimals": {
			lines: []Line{{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("10"), VATRate: dec("5.555")}},
		},
		"discount value beyond four decimals": {
			lines: twoLines(),
			spec:  DiscountSpec{Type: DiscountPercentage, Value: dec("7.12345")},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			currency := tc.currency
			if currency == "" && name != "fixed amount without currency" {
				currency = "EUR"
			}
			_, err := Recompute(tc.lines, tc.spec, currency)
			require.Error(t, err)
			require.True(t, errors.Is(err, shared.ErrValidation), "got %v", err)
		})
	}
}

func TestValidateLinesFieldForExcessScale(t *testing.T) {
	err := ValidateLines([]Line{
		{Type: LineItem, Quantity: dec("1"), UnitPrice: dec("10"), VATRate: dec("20")},
		{Type: LineItem, Quantity: dec("1000"), UnitPrice: dec("0.12345"), VATRate: dec("5.5")},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "lines[1].unit_price", verr.Field)
}

func TestValidateLinesAcceptsTrailingZeros(t *testing.T) {
	require.NoError(t, ValidateLines([]Line{
		{Type: LineItem, Quantity: dec("2.500000"), UnitPrice: dec("19.990000"), VATRate: dec("5.500")},
	}))
}

// Inputs at column precision reload unchanged, so line sums keep matching the totals.
func TestRecomputeStableAtStoredPrecision(t *testing.T) {
	lines := []Line{{Type: LineItem, Quantity: dec("1000"), UnitPrice: dec("0.1235"), VATRate: dec("5.56")}}
	totals, err := Recompute(lines, DiscountSpec{}, "EUR")
	require.NoError(t, err)

	reloaded := []Line{{
		Type:      LineItem,
		Quantity:  lines[0].Quantity.Round(QuantityPlaces),
		UnitPrice: lines[0].UnitPrice.Round(PricePlaces),
		VATRate:   lines[0].VATRate.Round(RatePlaces),
	}}
	again, err := Recompute(reloaded, DiscountSpec{}, "EUR")
	require.NoError(t, err)
	requireMoney(t, totals.TotalHT.String(), again.TotalHT)
	requireMoney(t, totals.TotalTVA.String(), again.TotalTVA)
	requireMoney(t, "123.50", again.TotalHT)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	lines := []Line{
		{Type: LineItem, Quantity: dec("3"), UnitPrice: dec("19.99"), VATRate: dec("20")},
		{Type: LineItem, Quantity: dec("1.5"), UnitPrice: dec("7.33"), VATRate: dec("5.5")},
		{Type: LineService, Quantity: dec("1"), UnitPrice: dec("120"), VATRate: dec("10")},
	}
	spec := DiscountSpec{Type: DiscountPercentage, Base: BaseAfterTax, Value: dec("7.5")}

	first, err := Recompute(lines, spec, "EUR")
	require.NoError(t, err)
	second, err := Recompute(lines, spec, "EUR")
	require.NoError(t, err)

	require.Equal(t, first.TotalHT.String(), second.TotalHT.String())
	require.Equal(t, first.TotalTVA.String(), second.TotalTVA.String())
	require.Equal(t, first.TotalTTC.String(), second.TotalTTC.String())
	for i := range first.Lines {
		require.Equal(t, first.Lines[i].HT.String(), second.Lines[i].HT.String())
		require.Equal(t, first.Lines[i].VAT.String(), second.Lines[i].VAT.String())
	}
}

func TestRecomputeReconciles(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	types := []DiscountType{DiscountNone, DiscountPercentage, DiscountFixedAmount}
	bases := []DiscountBase{BaseBeforeTax, BaseAfterTax}
	scopes := []DiscountScope{ScopeWholeDocument, ScopePerLine}
	rates := []string{"0", "5.5", "10", "20"}

	for round := 0; round < 300; round++ {
		n := rng.IntN(9)
		lines := make([]Line, n)
		for i := range lines {
			qty := decimal.NewFromInt(int64(rng.IntN(10) + 1))
			if rng.IntN(4) == 0 {
				qty = qty.Add(dec("0.5"))
			}
			lines[i] = Line{
				Type:      LineItem,
				Quantity:  qty,
				UnitPrice: decimal.New(int64(rng.IntN(100000)+1), -2),
				VATRate:   dec(rates[rng.IntN(len(rates))]),
			}
		}
		spec := DiscountSpec{
			Type:  types[rng.IntN(len(types))],
			Base:  bases[rng.IntN(len(bases))],
			Scope: scopes[rng.IntN(len(scopes))],
			Value: decimal.New(int64(rng.IntN(10000)), -2),
		}

		totals, err := Recompute(lines, spec, "EUR")
		require.NoError(t, err, "round %d spec %+v", round, spec)

		require.True(t, totals.TotalHT.Add(totals.TotalTVA).Equal(totals.TotalTTC), "round %d", round)
		require.False(t, totals.TotalHT.IsNegative(), "round %d", round)

		sumHT, sumVAT := decimal.Zero, decimal.Zero
		for _, lt := range totals.Lines {
			sumHT = sumHT.Add(lt.HT)
			sumVAT = sumVAT.Add(lt.VAT)
		}
		require.True(t, sumHT.Equal(totals.TotalHT), "round %d: lines %s total %s", round, sumHT, totals.TotalHT)
		require.True(t, sumVAT.Equal(totals.TotalTVA), "round %d: lines %s total %s", round, sumVAT, totals.TotalTVA)
	}
}
