package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is a decimal amount in an ISO 4217 currency. The amount marshals as a
// JSON string, matching the commerce backend's wire format.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// ParseMoney validates the amount and currency code.
func ParseMoney(amount, currencyCode string) (Money, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("amount %q is not valid: %w", amount, err)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(currencyCode))
	if err != nil {
		return Money{}, fmt.Errorf("currency %q is not valid: %w", currencyCode, err)
	}
	return Money{Amount: value, CurrencyCode: unit.String()}, nil
}

// Times multiplies the amount by n.
func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), CurrencyCode: m.CurrencyCode}
}

func (m Money) String() string {
	return m.CurrencyCode + " " + m.Amount.StringFixed(2)
}
