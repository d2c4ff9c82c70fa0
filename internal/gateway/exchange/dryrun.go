package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/trading"
)

// DryRun wraps a live venue so that market data and account reads stay
// real while every mutating call is logged and acknowledged without
// touching the account. Simulated orders carry no venue order id.
type DryRun struct {
	delegate Exchange
}

func NewDryRun(delegate Exchange) *DryRun {
	return &DryRun{delegate: delegate}
}

func (d *DryRun) Name() string { return d.delegate.Name() + " (dry-run)" }

func (d *DryRun) GetBalance(ctx context.Context) (Balance, error) {
	return d.delegate.GetBalance(ctx)
}

func (d *DryRun) GetPositions(ctx context.Context, symbols ...string) ([]Position, error) {
	return d.delegate.GetPositions(ctx, symbols...)
}

func (d *DryRun) GetLotFilters(ctx context.Context, symbol string) (trading.LotFilters, error) {
	return d.delegate.GetLotFilters(ctx, symbol)
}

func (d *DryRun) GetPositionMode(ctx context.Context) (bool, error) {
	return d.delegate.GetPositionMode(ctx)
}

func (d *DryRun) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return d.delegate.GetPrice(ctx, symbol)
}

func (d *DryRun) GetNotionalBracket(ctx context.Context, symbol string, leverage int) (decimal.Decimal, error) {
	return d.delegate.GetNotionalBracket(ctx, symbol, leverage)
}

func (d *DryRun) SetPositionMode(ctx context.Context, hedge bool) error {
	logger.Infof("[dry-run] skip position mode change hedge=%t", hedge)
	return nil
}

func (d *DryRun) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	logger.Infof("[dry-run] skip leverage change %s -> %dx", symbol, leverage)
	return nil
}

func (d *DryRun) SetMarginType(ctx context.Context, symbol string, marginType MarginType) error {
	logger.Infof("[dry-run] skip margin type change %s -> %s", symbol, marginType)
	return nil
}

func (d *DryRun) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*OrderResult, error) {
	logger.Infof("[dry-run] simulated %s %s qty=%s reduceOnly=%t",
		req.Side, req.Symbol, req.Quantity, req.ReduceOnly)
	return &OrderResult{
		ClientOrderID: req.ClientOrderID,
		Status:        "SIMULATED",
		Simulated:     true,
	}, nil
}
