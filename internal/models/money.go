package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code supported by the ledger.
type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// MoneyScale is the number of decimal places money is kept at.
const MoneyScale = 2

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", NewError(KindValidation, fmt.Sprintf("unsupported currency %q", code))
	}
	return c, nil
}

func (c Currency) Valid() bool {
	switch c {
	case CurrencyTRY, CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// Money pairs an amount with its currency. Values are immutable.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney rounds amount to two places, half away from zero.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount.Round(MoneyScale), Currency: currency}
}

// MustMoney parses a decimal string. Intended for fixtures and constants.
func MustMoney(amount string, currency Currency) Money {
	return NewMoney(decimal.RequireFromString(amount), currency)
}

// ZeroMoney returns zero in the given currency.
func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return NewError(KindCurrencyMismatch, fmt.Sprintf("%s vs %s", m.Currency, o.Currency))
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return NewMoney(m.Amount.Add(o.Amount), m.Currency), nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return NewMoney(m.Amount.Sub(o.Amount), m.Currency), nil
}

// GreaterThanOrEqual compares two amounts of the same currency.
func (m Money) GreaterThanOrEqual(o Money) (bool, error) {
	if err := m.sameCurrency(o); err != nil {
		return false, err
	}
	return m.Amount.GreaterThanOrEqual(o.Amount), nil
}

func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) IsZero() bool { return m.Amount.IsZero() }

func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal compares amount and currency.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(MoneyScale) + " " + string(m.Currency)
}
