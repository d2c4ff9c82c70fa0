// Package signal carries the normalized form of an inbound trading alert.
// Alerts are normalized exactly once at intake; everything downstream (queue,
// worker, ledger) consumes this type and never re-parses raw payloads.
package signal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the resolved order side after token mapping.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// ParseDirection maps the alert-token synonyms onto an order side. The
// Turkish tokens come from the strategy scripts feeding the webhook (AL=buy,
// SAT=sell). Anything else is a validation failure and must not be queued.
func ParseDirection(token string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "AL", "BUY", "LONG":
		return DirectionBuy, nil
	case "SAT", "SELL", "SHORT":
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("unsupported direction token %q", token)
	}
}

// Opposite returns the flip side.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// PositionSide is the exposure a filled order of this direction opens.
func (d Direction) PositionSide() string {
	if d == DirectionBuy {
		return "LONG"
	}
	return "SHORT"
}

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Signal is one normalized alert. Quantity, Leverage and Price are optional
// hints from the sender; sizing and price resolution happen in the worker.
// Raw keeps the original request body for auditing.
type Signal struct {
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"direction"`
	Quantity  decimal.Decimal `json:"quantity,omitempty"`
	Leverage  int             `json:"leverage,omitempty"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Note      string          `json:"note,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

func (s Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("signal has unresolved direction %q", s.Direction)
	}
	return nil
}
