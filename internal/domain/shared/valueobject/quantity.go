package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type quantityProps struct {
	Value decimal.Decimal
	Unit  string
}

// Quantity is a non-negative decimal count in a unit of measure, so goods
// sold by weight work too.
type Quantity struct {
	shared.ValueObject[quantityProps]
}

// Equals is true for another Quantity, or *Quantity, with equal props
func (q Quantity) Equals(other any) bool {
	return shared.SameValue[quantityProps](q, other)
}

func newQuantity(value decimal.Decimal, unit string) Quantity {
	return Quantity{shared.NewValueObject(quantityProps{Value: value, Unit: unit})}
}

// NewQuantity rejects negative values
func NewQuantity(value decimal.Decimal, unit string) (Quantity, error) {
	if value.IsNegative() {
		return Quantity{}, errors.New("quantity cannot be negative")
	}
	return newQuantity(value, unit), nil
}

func NewQuantityFromInt(value int64, unit string) (Quantity, error) {
	return NewQuantity(decimal.NewFromInt(value), unit)
}

// MustNewQuantity panics on a negative value
func MustNewQuantity(value decimal.Decimal, unit string) Quantity {
	q, err := NewQuantity(value, unit)
	if err != nil {
		panic(err)
	}
	return q
}

func MustNewQuantityFromInt(value int64, unit string) Quantity {
	q, err := NewQuantityFromInt(value, unit)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Amount() decimal.Decimal {
	return q.Props().Value
}

func (q Quantity) Unit() string {
	return q.Props().Unit
}

func (q Quantity) IsZero() bool {
	return q.Amount().IsZero()
}

func (q Quantity) IsPositive() bool {
	return q.Amount().IsPositive()
}

// Add fails when the units differ
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.Unit() != other.Unit() {
		return Quantity{}, fmt.Errorf("cannot add quantities with different units: %s and %s", q.Unit(), other.Unit())
	}
	return newQuantity(q.Amount().Add(other.Amount()), q.Unit()), nil
}

// String is "<value> <unit>", or the bare value without a unit
func (q Quantity) String() string {
	if q.Unit() == "" {
		return q.Amount().String()
	}
	return fmt.Sprintf("%s %s", q.Amount().String(), q.Unit())
}

type quantityJSON struct {
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(quantityJSON{Value: q.Amount().String(), Unit: q.Unit()})
}

// UnmarshalJSON applies the NewQuantity checks
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var v quantityJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	value, err := decimal.NewFromString(v.Value)
	if err != nil {
		return fmt.Errorf("invalid quantity: %w", err)
	}
	parsed, err := NewQuantity(value, v.Unit)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
