// Package trading implements order sizing against exchange lot constraints.
package trading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LotFilters are the per-symbol quantity constraints from exchange info.
type LotFilters struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// ErrBelowMinQty marks a sized quantity the exchange would reject. It is a
// terminal condition for the triggering signal, not a retryable one.
var ErrBelowMinQty = errors.New("quantity below exchange minimum")

// Quantity pairs a sized value with its exact wire rendering. The rendered
// string is parsed back into Value so later comparisons and notional math
// operate on precisely the number sent to the exchange, with no float drift.
type Quantity struct {
	Value decimal.Decimal
	Text  string
}

func (q Quantity) IsZero() bool {
	return q.Value.IsZero()
}

// Size computes the order quantity for a capital basis at a leverage tier:
// notional = basis * max(1, leverage); qty = floor(notional/price/step)*step.
func Size(basis decimal.Decimal, leverage int, price decimal.Decimal, filters LotFilters) (Quantity, error) {
	if basis.Sign() <= 0 {
		return Quantity{}, fmt.Errorf("capital basis must be positive, got %s", basis)
	}
	if price.Sign() <= 0 {
		return Quantity{}, fmt.Errorf("price must be positive, got %s", price)
	}
	lev := decimal.NewFromInt(int64(leverage))
	if lev.LessThan(decimal.NewFromInt(1)) {
		lev = decimal.NewFromInt(1)
	}
	notional := basis.Mul(lev)
	return Snap(notional.Div(price), filters)
}

// ShrinkToNotional sizes the largest step-aligned quantity whose notional
// stays at or under the cap. Used when a bracket limit forces an order
// smaller.
func ShrinkToNotional(limit decimal.Decimal, price decimal.Decimal, filters LotFilters) (Quantity, error) {
	if limit.Sign() <= 0 {
		return Quantity{}, fmt.Errorf("notional cap must be positive, got %s", limit)
	}
	if price.Sign() <= 0 {
		return Quantity{}, fmt.Errorf("price must be positive, got %s", price)
	}
	return Snap(limit.Div(price), filters)
}

// Snap floors a raw quantity to the step grid and renders it at the step's
// precision. Rejects results that are zero or under the exchange minimum.
func Snap(raw decimal.Decimal, filters LotFilters) (Quantity, error) {
	step := filters.StepSize
	if step.Sign() <= 0 {
		return Quantity{}, fmt.Errorf("invalid step size %s", step)
	}
	snapped := raw.Div(step).Floor().Mul(step)
	text := snapped.StringFixed(stepPrecision(step))
	value, err := decimal.NewFromString(text)
	if err != nil {
		return Quantity{}, fmt.Errorf("re-parse sized quantity %q: %w", text, err)
	}
	if value.Sign() <= 0 || value.LessThan(filters.MinQty) {
		return Quantity{}, fmt.Errorf("%w: sized %s, minimum %s", ErrBelowMinQty, text, filters.MinQty)
	}
	return Quantity{Value: value, Text: text}, nil
}

// stepPrecision derives the wire precision from the step size. Exchange info
// pads steps with trailing zeros ("0.01000000"); those must not widen the
// rendered quantity.
func stepPrecision(step decimal.Decimal) int32 {
	s := step.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return int32(len(strings.TrimRight(s[i+1:], "0")))
}
