package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code
type Currency string

const (
	CNY Currency = "CNY" // Chinese Yuan (default)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	JPY Currency = "JPY" // Japanese Yen
	HKD Currency = "HKD" // Hong Kong Dollar
)

// DefaultCurrency is assumed when a stored amount has no currency
const DefaultCurrency = CNY

type moneyProps struct {
	Amount   decimal.Decimal
	Currency Currency
}

// Money is an amount in one currency. Arithmetic returns new values.
// Equality compares the numeric amount, so 100 and 100.00 CNY are equal.
type Money struct {
	shared.ValueObject[moneyProps]
}

// Equals is true for another Money, or *Money, with equal props
func (m Money) Equals(other any) bool {
	return shared.SameValue[moneyProps](m, other)
}

func newMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{shared.NewValueObject(moneyProps{Amount: amount, Currency: currency})}
}

// NewMoney rejects an empty currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return newMoney(amount, currency), nil
}

// MustNewMoney is like NewMoney but panics on an empty currency
func MustNewMoney(amount decimal.Decimal, currency Currency) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func NewMoneyFromInt(amount int64, currency Currency) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount), currency)
}

// NewMoneyFromString parses a decimal amount such as "12.50"
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

func NewMoneyCNY(amount decimal.Decimal) Money {
	return newMoney(amount, CNY)
}

// Zero is nothing in currency
func Zero(currency Currency) Money {
	return newMoney(decimal.Zero, currency)
}

func (m Money) Amount() decimal.Decimal {
	return m.Props().Amount
}

func (m Money) Currency() Currency {
	return m.Props().Currency
}

func (m Money) IsZero() bool {
	return m.Amount().IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount().IsNegative()
}

func (m Money) sameCurrency(op string, other Money) error {
	if m.Currency() != other.Currency() {
		return fmt.Errorf("cannot %s money with different currencies: %s and %s", op, m.Currency(), other.Currency())
	}
	return nil
}

// Add fails when the currencies differ
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency("add", other); err != nil {
		return Money{}, err
	}
	return newMoney(m.Amount().Add(other.Amount()), m.Currency()), nil
}

// MustAdd panics when the currencies differ
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract fails when the currencies differ
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency("subtract", other); err != nil {
		return Money{}, err
	}
	return newMoney(m.Amount().Sub(other.Amount()), m.Currency()), nil
}

// Multiply scales the amount by factor without rounding
func (m Money) Multiply(factor decimal.Decimal) Money {
	return newMoney(m.Amount().Mul(factor), m.Currency())
}

// Round rounds half away from zero to places decimals
func (m Money) Round(places int32) Money {
	return newMoney(m.Amount().Round(places), m.Currency())
}

// GreaterThan compares amounts of the same currency
func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.sameCurrency("compare", other); err != nil {
		return false, err
	}
	return m.Amount().GreaterThan(other.Amount()), nil
}

// String formats with two decimals, e.g. "12.50 CNY"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount().StringFixed(2), m.Currency())
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount().String(), Currency: m.Currency()})
}

// UnmarshalJSON rejects an empty currency
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	parsed, err := NewMoney(amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount only. The currency has its own column.
func (m Money) Value() (driver.Value, error) {
	return m.Amount().String(), nil
}

// Scan reads an amount. The receiver's currency is kept, or
// DefaultCurrency when it has none.
func (m *Money) Scan(value any) error {
	currency := m.Currency()
	if currency == "" {
		currency = DefaultCurrency
	}
	if value == nil {
		*m = Zero(currency)
		return nil
	}

	var amount decimal.Decimal
	if err := amount.Scan(value); err != nil {
		return fmt.Errorf("cannot scan %T into Money: %w", value, err)
	}
	*m = newMoney(amount, currency)
	return nil
}
