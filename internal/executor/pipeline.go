package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/ledger"
	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/trading"
	"tvbridge/internal/queue"
	"tvbridge/internal/signal"
	"tvbridge/internal/store/model"
)

// outcome is what a finished execution reports back to the loop.
type outcome struct {
	skipped   bool
	simulated bool
	orderID   int64
	quantity  string
	price     decimal.Decimal
	leverage  int
	notional  decimal.Decimal
	warning   string
	closed    string // quantity flip-closed before the entry, "" if none
}

// execute runs one signal through the full pipeline: dedupe against the
// ledger, account preparation, sizing, optional flip-close, bracket check,
// order placement and the atomic bookkeeping commit.
func (w *Worker) execute(ctx context.Context, item queue.Item) (*outcome, error) {
	sig := item.Signal
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	sym := sig.Symbol

	pos, err := w.ledger.Get(ctx, w.channel.ID, sym)
	if err != nil {
		return nil, asRetryable(fmt.Errorf("load position: %w", err))
	}
	if pos != nil && pos.Side == sig.Direction {
		// Repeated alerts in the same direction must not stack exposure.
		logger.Infof("[worker:%s] %s already %s %s, ignoring duplicate entry",
			w.channel.ID, sym, pos.Side, pos.Quantity)
		return &outcome{skipped: true}, nil
	}

	if err := w.ensurePositionMode(ctx); err != nil {
		return nil, err
	}

	balance, err := w.venue.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	basis, err := w.capitalBasis(balance)
	if err != nil {
		return nil, err
	}

	price, err := w.venue.GetPrice(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}
	leverage := w.policy.ResolveLeverage(w.channel.Leverage, sym, sig.Leverage)
	filters, err := w.venue.GetLotFilters(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("fetch lot filters: %w", err)
	}
	qty, err := w.resolveQuantity(sig, basis, leverage, price, filters)
	if err != nil {
		return nil, err
	}

	out := &outcome{price: price, leverage: leverage}

	if pos != nil {
		closed, err := w.closeOpposite(ctx, pos, sig.Direction, price)
		if err != nil {
			return nil, err
		}
		out.closed = closed
	}

	qty, out.warning, err = w.applyNotionalCap(ctx, sym, leverage, price, qty, filters)
	if err != nil {
		return nil, err
	}

	if err := w.prepareSymbol(ctx, sym, leverage); err != nil {
		return nil, err
	}

	req := exchange.MarketOrderRequest{
		Symbol:        sym,
		Side:          string(sig.Direction),
		Quantity:      qty.Text,
		ClientOrderID: uuid.NewString(),
	}
	if w.channel.HedgeMode {
		req.PositionSide = sig.Direction.PositionSide()
	}
	res, err := w.venue.PlaceMarketOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place %s %s %s: %w", req.Side, qty.Text, sym, err)
	}
	if res.OrderID == 0 && !res.Simulated {
		return nil, asFatal(fmt.Errorf("venue accepted %s %s but returned no order id", req.Side, sym))
	}
	out.orderID = res.OrderID
	out.simulated = res.Simulated
	out.quantity = qty.Text
	out.notional = qty.Value.Mul(price)

	if err := w.finalize(ctx, item, qty, price, leverage, basis, balance, res, out); err != nil {
		// The order is live; a retry would place it again. Patch the ledger
		// directly so at least the position state matches the venue, and
		// surface the bookkeeping failure loudly.
		w.recoverBookkeeping(sig, qty, price, leverage)
		return nil, asFatal(fmt.Errorf("order %d filled but bookkeeping failed: %w", res.OrderID, err))
	}
	return out, nil
}

// ensurePositionMode aligns the account's hedge/one-way setting with the
// channel. Failures here are terminal: executing with the wrong position
// mode places orders the rest of the pipeline mis-accounts.
func (w *Worker) ensurePositionMode(ctx context.Context) error {
	hedge, err := w.venue.GetPositionMode(ctx)
	if err != nil {
		return asFatal(fmt.Errorf("read position mode: %w", err))
	}
	if hedge == w.channel.HedgeMode {
		return nil
	}
	logger.Infof("[worker:%s] switching account position mode to hedge=%t", w.channel.ID, w.channel.HedgeMode)
	if err := w.venue.SetPositionMode(ctx, w.channel.HedgeMode); err != nil {
		return asFatal(fmt.Errorf("set position mode: %w", err))
	}
	return nil
}

// capitalBasis resolves the channel's capital for one entry, either a fixed
// amount*multiplier or a percentage of live available balance.
func (w *Worker) capitalBasis(balance exchange.Balance) (decimal.Decimal, error) {
	if w.channel.UseBalancePct {
		pct := decimal.NewFromFloat(w.channel.BalancePct)
		basis := balance.Available.Mul(pct).Div(decimal.NewFromInt(100))
		if basis.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("available balance %s yields no capital at %s%%",
				balance.Available, pct)
		}
		return basis, nil
	}
	basis := decimal.NewFromFloat(w.channel.Amount).Mul(decimal.NewFromFloat(w.channel.Multiplier))
	if basis.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("channel capital %.2f*%.2f is not positive",
			w.channel.Amount, w.channel.Multiplier)
	}
	return basis, nil
}

// resolveQuantity prefers an explicit quantity from the alert, snapped to
// the lot grid; otherwise sizes from the capital basis.
func (w *Worker) resolveQuantity(sig signal.Signal, basis decimal.Decimal, leverage int, price decimal.Decimal, filters trading.LotFilters) (trading.Quantity, error) {
	if sig.Quantity.Sign() > 0 {
		qty, err := trading.Snap(sig.Quantity, filters)
		if err != nil {
			return trading.Quantity{}, fmt.Errorf("explicit quantity %s: %w", sig.Quantity, err)
		}
		return qty, nil
	}
	qty, err := trading.Size(basis, leverage, price, filters)
	if err != nil {
		return trading.Quantity{}, fmt.Errorf("size %s with basis %s at %dx: %w", sig.Symbol, basis, leverage, err)
	}
	return qty, nil
}

// closeOpposite flattens the channel's existing position before the new
// entry. A venue report that there is nothing to reduce means the ledger was
// stale; the entry clears and execution continues.
func (w *Worker) closeOpposite(ctx context.Context, pos *ledger.Record, dir signal.Direction, price decimal.Decimal) (string, error) {
	closeQty := pos.Quantity.String()
	req := exchange.MarketOrderRequest{
		Symbol:        pos.Symbol,
		Side:          string(dir),
		Quantity:      closeQty,
		ClientOrderID: uuid.NewString(),
	}
	if w.channel.HedgeMode {
		req.PositionSide = pos.Side.PositionSide()
	} else {
		req.ReduceOnly = true
	}
	logger.Infof("[worker:%s] flipping %s: closing %s %s before new %s entry",
		w.channel.ID, pos.Symbol, pos.Side, closeQty, dir)

	res, err := w.venue.PlaceMarketOrder(ctx, req)
	switch {
	case errors.Is(err, exchange.ErrNothingToReduce):
		logger.Warnf("[worker:%s] %s already flat on venue, dropping stale ledger entry", w.channel.ID, pos.Symbol)
		res = nil
	case err != nil:
		return "", fmt.Errorf("close opposite %s position: %w", pos.Side, err)
	case res.OrderID == 0 && !res.Simulated:
		return "", asFatal(fmt.Errorf("close order for %s returned no order id", pos.Symbol))
	}

	if res != nil {
		record := &model.OrderModel{
			Channel:       w.channel.ID,
			Symbol:        pos.Symbol,
			Side:          string(dir),
			Quantity:      closeQty,
			Price:         price.String(),
			Leverage:      pos.Leverage,
			Notional:      pos.Quantity.Mul(price).InexactFloat64(),
			OrderID:       res.OrderID,
			ClientOrderID: res.ClientOrderID,
			ReduceOnly:    true,
			DryRun:        res.Simulated,
			Response:      datatypes.JSON(res.Raw),
		}
		if err := w.store.Orders().Create(ctx, record); err != nil {
			// The close is already done on the venue; losing the audit row is
			// not worth failing the whole signal over.
			logger.Errorf("[worker:%s] record close order %d: %v", w.channel.ID, res.OrderID, err)
		}
	}

	if err := w.ledger.Clear(ctx, pos.Channel, pos.Symbol); err != nil {
		return "", asRetryable(fmt.Errorf("clear closed %s position: %w", pos.Symbol, err))
	}
	return closeQty, nil
}

// applyNotionalCap shrinks the order when the leverage bracket caps position
// notional below what sizing produced.
func (w *Worker) applyNotionalCap(ctx context.Context, sym string, leverage int, price decimal.Decimal, qty trading.Quantity, filters trading.LotFilters) (trading.Quantity, string, error) {
	maxNotional, err := w.venue.GetNotionalBracket(ctx, sym, leverage)
	if err != nil {
		return qty, "", fmt.Errorf("fetch leverage bracket: %w", err)
	}
	if maxNotional.Sign() <= 0 {
		return qty, "", nil
	}
	notional := qty.Value.Mul(price)
	if notional.LessThanOrEqual(maxNotional) {
		return qty, "", nil
	}
	shrunk, err := trading.ShrinkToNotional(maxNotional, price, filters)
	if err != nil {
		return qty, "", fmt.Errorf("bracket cap %s at %dx leaves no tradable quantity: %w", maxNotional, leverage, err)
	}
	warning := fmt.Sprintf("quantity reduced %s -> %s to fit max notional %s at %dx", qty.Text, shrunk.Text, maxNotional, leverage)
	logger.Warnf("[worker:%s] %s: %s", w.channel.ID, sym, warning)
	return shrunk, warning, nil
}

// prepareSymbol pushes leverage and margin type to the venue before the
// entry order.
func (w *Worker) prepareSymbol(ctx context.Context, sym string, leverage int) error {
	if err := w.venue.SetLeverage(ctx, sym, leverage); err != nil {
		return fmt.Errorf("set leverage %dx: %w", leverage, err)
	}
	if err := w.venue.SetMarginType(ctx, sym, w.marginType()); err != nil {
		return fmt.Errorf("set margin type: %w", err)
	}
	return nil
}

// marginType resolves channel override first, then the runtime rules, then
// isolated.
func (w *Worker) marginType() exchange.MarginType {
	if mt := exchange.MarginType(w.channel.MarginType); mt.Valid() {
		return mt
	}
	if mt := exchange.MarginType(w.policy.Current().MarginType); mt.Valid() {
		return mt
	}
	return exchange.MarginIsolated
}

// finalize commits the order audit row, the position upsert, a balance
// snapshot and the signal completion as one transaction, then syncs the
// in-memory ledger and usage tracker.
func (w *Worker) finalize(ctx context.Context, item queue.Item, qty trading.Quantity, price decimal.Decimal, leverage int, basis decimal.Decimal, balance exchange.Balance, res *exchange.OrderResult, out *outcome) error {
	sig := item.Signal
	uow, err := w.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	fail := func(step string, err error) error {
		if rbErr := uow.Rollback(); rbErr != nil {
			logger.Errorf("[worker:%s] rollback after %s failure: %v", w.channel.ID, step, rbErr)
		}
		return fmt.Errorf("%s: %w", step, err)
	}

	order := &model.OrderModel{
		Channel:       w.channel.ID,
		Symbol:        sig.Symbol,
		Side:          string(sig.Direction),
		Quantity:      qty.Text,
		Price:         price.String(),
		Leverage:      leverage,
		Notional:      out.notional.InexactFloat64(),
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		DryRun:        res.Simulated,
		Warning:       out.warning,
		Response:      datatypes.JSON(res.Raw),
	}
	if err := uow.Orders().Create(ctx, order); err != nil {
		return fail("record order", err)
	}

	position := &model.PositionModel{
		Channel:    w.channel.ID,
		Symbol:     sig.Symbol,
		Side:       string(sig.Direction),
		Quantity:   qty.Text,
		EntryPrice: price.String(),
		Leverage:   leverage,
	}
	if err := uow.Positions().Upsert(ctx, position); err != nil {
		return fail("record position", err)
	}

	usedAfter := w.usage.Total().Add(basis)
	snapshot := &model.BalanceSnapshotModel{
		TotalWalletBalance: balance.Wallet.InexactFloat64(),
		AvailableBalance:   balance.Available.InexactFloat64(),
		UsedAllocationUSD:  usedAfter.InexactFloat64(),
		Note:               fmt.Sprintf("%s %s %s %s", w.channel.ID, sig.Direction, qty.Text, sig.Symbol),
	}
	if err := uow.Snapshots().Create(ctx, snapshot); err != nil {
		return fail("record balance snapshot", err)
	}

	if err := uow.Signals().UpdateStatus(ctx, item.ID, model.SignalStatusCompleted, ""); err != nil {
		return fail("complete signal event", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit execution: %w", err)
	}

	w.ledger.Prime(ledger.Record{
		Channel:    w.channel.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Quantity:   qty.Value,
		EntryPrice: price,
		Leverage:   leverage,
		UpdatedAt:  time.Now().UTC(),
	})
	w.usage.Add(w.channel.ID, basis)
	return nil
}

// recoverBookkeeping is the best-effort path when the post-order transaction
// failed: write the position through the non-transactional ledger so a flip
// on the next signal still sees the live exposure.
func (w *Worker) recoverBookkeeping(sig signal.Signal, qty trading.Quantity, price decimal.Decimal, leverage int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := ledger.Record{
		Channel:    w.channel.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Quantity:   qty.Value,
		EntryPrice: price,
		Leverage:   leverage,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := w.ledger.Upsert(ctx, rec); err != nil {
		logger.Errorf("[worker:%s] CRITICAL: %s %s %s filled on venue but position could not be recorded: %v",
			w.channel.ID, sig.Direction, qty.Text, sig.Symbol, err)
	}
}
