package plan

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`     // amount in smallest currency unit (cents for USD)
	Currency string `json:"currency" yaml:"currency"` // ISO 4217 currency code
}

// IsZero reports whether the amount is zero regardless of currency.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// SameCurrency reports whether both amounts use the same currency.
// Zero amounts without a currency are compatible with anything.
func (m Money) SameCurrency(other Money) bool {
	if m.Currency == "" && m.Amount == 0 || other.Currency == "" && other.Amount == 0 {
		return true
	}
	return strings.EqualFold(m.Currency, other.Currency)
}

// Format renders the amount for humans, e.g. "$49.99".
// Falls back to "<amount> <currency>" when the currency code is unknown.
func (m Money) Format(tag language.Tag) string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := float64(m.Amount) / math.Pow10(scale)
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(value)))
}

func (m Money) String() string {
	return m.Format(language.English)
}
