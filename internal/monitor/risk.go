package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tvbridge/internal/config"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/ledger"
	"tvbridge/internal/logger"
	"tvbridge/internal/scheduler"
	"tvbridge/internal/signal"
	"tvbridge/internal/store"
	"tvbridge/internal/store/model"
)

// Sweeper closes fresh positions that went straight into loss. It only
// looks at ledger rows younger than the age cutoff; older positions are the
// strategy's business, not ours.
type Sweeper struct {
	cfg      config.RiskSweepConfig
	channels map[string]config.ChannelConfig
	venue    exchange.Exchange
	orders   store.OrderRepository
	ledger   *ledger.Ledger
	notify   notifier.TextNotifier
}

func NewSweeper(cfg config.RiskSweepConfig, channels []config.ChannelConfig, venue exchange.Exchange, orders store.OrderRepository, led *ledger.Ledger, notify notifier.TextNotifier) *Sweeper {
	byID := make(map[string]config.ChannelConfig, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Sweeper{
		cfg:      cfg,
		channels: byID,
		venue:    venue,
		orders:   orders,
		ledger:   led,
		notify:   notify,
	}
}

// Run blocks until ctx is cancelled. Returns immediately when the sweep is
// disabled, which is the default.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		logger.Infof("[monitor] early-loss sweep disabled")
		return nil
	}
	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	sch := scheduler.NewAlignedScheduler(ctx, interval, 0)
	sch.Name = "risk-sweep"
	sch.Start(func() { s.sweep(ctx) })
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	records, err := s.ledger.List(ctx)
	if err != nil {
		logger.Warnf("[monitor] sweep: list positions: %v", err)
		return
	}
	maxAge := time.Duration(s.cfg.MaxAgeMinutes) * time.Minute
	now := time.Now()
	var closed []string
	for _, rec := range records {
		if now.Sub(rec.UpdatedAt) > maxAge {
			continue
		}
		mark, err := s.venue.GetPrice(ctx, rec.Symbol)
		if err != nil {
			logger.Warnf("[monitor] sweep: price %s: %v", rec.Symbol, err)
			continue
		}
		loss := lossPct(rec, mark)
		if loss < s.cfg.MinLossPct {
			continue
		}
		logger.Warnf("[monitor] sweep: closing %s/%s %s %s, %.2f%% against entry",
			rec.Channel, rec.Symbol, rec.Side, rec.Quantity, loss)
		if err := s.closePosition(ctx, rec, mark); err != nil {
			logger.Errorf("[monitor] sweep: close %s/%s: %v", rec.Channel, rec.Symbol, err)
			continue
		}
		closed = append(closed, fmt.Sprintf("%s %s %s %s at -%.2f%%",
			rec.Channel, rec.Side, rec.Quantity, rec.Symbol, loss))
	}
	if len(closed) == 0 {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:      "🛑",
		Title:     "Early-Loss Sweep",
		Sections:  []notifier.MessageSection{{Title: "Closed", Lines: closed}},
		Timestamp: time.Now().UTC(),
	}
	if err := s.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[monitor] telegram push failed (sweep): %v", err)
	}
}

func (s *Sweeper) closePosition(ctx context.Context, rec ledger.Record, mark decimal.Decimal) error {
	req := exchange.MarketOrderRequest{
		Symbol:        rec.Symbol,
		Side:          string(rec.Side.Opposite()),
		Quantity:      rec.Quantity.String(),
		ClientOrderID: uuid.NewString(),
	}
	if ch, ok := s.channels[rec.Channel]; ok && ch.HedgeMode {
		req.PositionSide = rec.Side.PositionSide()
	} else {
		req.ReduceOnly = true
	}

	res, err := s.venue.PlaceMarketOrder(ctx, req)
	switch {
	case errors.Is(err, exchange.ErrNothingToReduce):
		logger.Warnf("[monitor] sweep: %s already flat on venue, clearing ledger", rec.Symbol)
		res = nil
	case err != nil:
		return err
	}

	if res != nil {
		record := &model.OrderModel{
			Channel:       rec.Channel,
			Symbol:        rec.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			Price:         mark.String(),
			Leverage:      rec.Leverage,
			Notional:      rec.Quantity.Mul(mark).InexactFloat64(),
			OrderID:       res.OrderID,
			ClientOrderID: res.ClientOrderID,
			ReduceOnly:    req.ReduceOnly,
			DryRun:        res.Simulated,
			Warning:       "closed by early-loss sweep",
			Response:      datatypes.JSON(res.Raw),
		}
		if err := s.orders.Create(ctx, record); err != nil {
			logger.Errorf("[monitor] sweep: record close order: %v", err)
		}
	}
	return s.ledger.Clear(ctx, rec.Channel, rec.Symbol)
}

// lossPct is how far mark has moved against entry, in percent. Positive
// means losing; winners come out negative.
func lossPct(rec ledger.Record, mark decimal.Decimal) float64 {
	if rec.EntryPrice.Sign() <= 0 {
		return 0
	}
	move := mark.Sub(rec.EntryPrice).Div(rec.EntryPrice).Mul(decimal.NewFromInt(100))
	if rec.Side == signal.DirectionBuy {
		move = move.Neg()
	}
	f, _ := move.Float64()
	return f
}
