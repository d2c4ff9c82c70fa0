package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"tvbridge/internal/pkg/trading"
)

// Exchange is the venue contract the execution pipeline runs against. Every
// method can fail with a classified *Error (transient vs permanent); the
// worker's retry policy branches on that classification.
type Exchange interface {
	Name() string

	GetBalance(ctx context.Context) (Balance, error)

	GetPositions(ctx context.Context, symbols ...string) ([]Position, error)

	GetLotFilters(ctx context.Context, symbol string) (trading.LotFilters, error)

	// GetPositionMode reports whether the account is in hedge (dual-side)
	// mode.
	GetPositionMode(ctx context.Context) (bool, error)

	SetPositionMode(ctx context.Context, hedge bool) error

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	SetMarginType(ctx context.Context, symbol string, marginType MarginType) error

	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetNotionalBracket returns the maximum position notional the venue
	// allows at the given leverage tier; zero means no cap is known.
	GetNotionalBracket(ctx context.Context, symbol string, leverage int) (decimal.Decimal, error)

	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*OrderResult, error)
}
