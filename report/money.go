package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMoney renders an amount with the currency symbol of code in the given
// language. Unknown currency codes fall back to "<amount> <code>".
func FormatMoney(tag language.Tag, amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), code)
	}
	p := message.NewPrinter(tag)
	symbol := p.Sprint(currency.Symbol(unit))
	return symbol + " " + p.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

// FormatPercent renders a rate such as 20 or 5.5 as "20%" or "5.5%".
func FormatPercent(rate decimal.Decimal) string {
	return rate.String() + "%"
}
