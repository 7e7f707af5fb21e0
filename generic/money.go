package generic

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amounts and display formatting
// =============================================================================

// CurrencyFormat describes how amounts are rendered for display.
type CurrencyFormat struct {
	Symbol    string
	Thousands string
	Decimal   string
}

// BRL is the default display format: R$ 1.234,56
var BRL = CurrencyFormat{Symbol: "R$", Thousands: ".", Decimal: ","}

// FormatCurrency renders amount with two decimals in the BRL format.
func FormatCurrency(amount decimal.Decimal) string {
	return BRL.Format(amount)
}

// Format renders amount rounded half away from zero to two decimals.
func (f CurrencyFormat) Format(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteString(f.Thousands)
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + f.Symbol + " " + grouped.String() + f.Decimal + fracPart
}

// SignedAmount returns +amount for credits and -amount for debits.
func SignedAmount(amount decimal.Decimal, credit bool) decimal.Decimal {
	if credit {
		return amount
	}
	return amount.Neg()
}
