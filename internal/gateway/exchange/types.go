// Package exchange defines the venue abstraction the execution pipeline
// consumes. The concrete Binance implementation lives in gateway/binance;
// a dry-run decorator there fakes all mutating calls.
package exchange

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a market order.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// MarginType of a futures position.
type MarginType string

const (
	MarginIsolated MarginType = "ISOLATED"
	MarginCrossed  MarginType = "CROSSED"
)

func (m MarginType) Valid() bool {
	return m == MarginIsolated || m == MarginCrossed
}

// Balance is the account's stake-currency state.
type Balance struct {
	Asset     string          // stake currency, e.g. "USDT"
	Wallet    decimal.Decimal // total wallet balance
	Available decimal.Decimal // available for new margin
	UpdatedAt time.Time
}

// Position is the venue's view of an open position. Amount is signed the
// way the venue reports it: positive long, negative short.
type Position struct {
	Symbol      string
	Amount      decimal.Decimal
	EntryPrice  decimal.Decimal
	MarkPrice   decimal.Decimal
	Leverage    int
	MaxNotional decimal.Decimal // cap at the current leverage, 0 if unknown
}

func (p Position) IsOpen() bool {
	return !p.Amount.IsZero()
}

// MarketOrderRequest carries exactly what goes on the wire. Quantity is the
// pre-rendered fixed-precision string from the sizing engine. PositionSide
// is only set for hedge-mode accounts ("LONG"/"SHORT"); one-way accounts
// leave it empty and use ReduceOnly for closes.
type MarketOrderRequest struct {
	Symbol        string
	Side          string // SideBuy or SideSell
	Quantity      string
	PositionSide  string
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult is the venue's answer to a market order. Simulated results
// come from the dry-run decorator and carry no OrderID.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Status        string
	Raw           json.RawMessage
	Simulated     bool
}
