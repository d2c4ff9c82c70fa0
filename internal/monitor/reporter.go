// Package monitor hosts the scheduled background jobs: a liveness
// heartbeat, a periodic balance/PnL report and an optional early-loss
// sweep. All of them are observers; only the sweep ever trades.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tvbridge/internal/config"
	"tvbridge/internal/executor"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/logger"
	"tvbridge/internal/queue"
	"tvbridge/internal/scheduler"
	"tvbridge/internal/store"
	"tvbridge/internal/store/model"
)

// Reporter sends the heartbeat and the periodic balance report.
type Reporter struct {
	cfg       config.MonitorConfig
	venue     exchange.Exchange
	snapshots store.SnapshotRepository
	queues    *queue.Registry
	usage     *executor.UsageTracker
	notify    notifier.TextNotifier
	startedAt time.Time
}

func NewReporter(cfg config.MonitorConfig, venue exchange.Exchange, snapshots store.SnapshotRepository, queues *queue.Registry, usage *executor.UsageTracker, notify notifier.TextNotifier) *Reporter {
	if notify == nil {
		notify = notifier.Nop{}
	}
	if usage == nil {
		usage = executor.NewUsageTracker()
	}
	return &Reporter{
		cfg:       cfg,
		venue:     venue,
		snapshots: snapshots,
		queues:    queues,
		usage:     usage,
		notify:    notify,
		startedAt: time.Now(),
	}
}

// RunHeartbeat blocks until ctx is cancelled, ticking at the top of every
// hour.
func (r *Reporter) RunHeartbeat(ctx context.Context) error {
	if !r.cfg.HeartbeatEnabled {
		logger.Infof("[monitor] heartbeat disabled")
		return nil
	}
	s := scheduler.NewAlignedScheduler(ctx, time.Hour, 0)
	s.Name = "heartbeat"
	s.Start(func() { r.heartbeat(ctx) })
	return nil
}

// RunBalanceReport blocks until ctx is cancelled.
func (r *Reporter) RunBalanceReport(ctx context.Context) error {
	interval := time.Duration(r.cfg.ReportIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	s := scheduler.NewAlignedScheduler(ctx, interval, 0)
	s.Name = "balance-report"
	s.Start(func() { r.report(ctx) })
	return nil
}

func (r *Reporter) heartbeat(ctx context.Context) {
	lines := r.queueLines(ctx)
	logger.Infof("[monitor] heartbeat: %s", strings.Join(lines, "; "))

	msg := notifier.StructuredMessage{
		Icon:      "💓",
		Title:     "Heartbeat",
		Sections:  []notifier.MessageSection{{Title: "Queues", Lines: lines}},
		Timestamp: time.Now().UTC(),
	}
	if err := r.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[monitor] telegram push failed (heartbeat): %v", err)
	}
}

func (r *Reporter) queueLines(ctx context.Context) []string {
	lines := []string{fmt.Sprintf("uptime %s", time.Since(r.startedAt).Truncate(time.Second))}
	for _, q := range r.queues.All() {
		st, err := q.Stats(ctx)
		if err != nil {
			logger.Warnf("[monitor] queue stats %s: %v", q.Channel(), err)
			lines = append(lines, fmt.Sprintf("%s: stats unavailable", q.Channel()))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: depth %d pending %d processing %d failed %d",
			st.Channel, st.Depth, st.Pending, st.Processing, st.Failed))
	}
	return lines
}

// StatusText serves the operator /status command.
func (r *Reporter) StatusText(ctx context.Context) string {
	return strings.Join(r.queueLines(ctx), "\n")
}

// ReportNow builds one balance report on demand and returns its rendered
// text, for the operator /report command. The scheduled job sends through
// the notifier instead.
func (r *Reporter) ReportNow(ctx context.Context) string {
	text, err := r.buildReport(ctx)
	if err != nil {
		return fmt.Sprintf("report failed: %v", err)
	}
	return text
}

// report fetches the account state, persists a snapshot row and pushes the
// summary. Venue read failures skip the round; they are not worth retry
// machinery for a periodic job.
func (r *Reporter) report(ctx context.Context) {
	text, err := r.buildReport(ctx)
	if err != nil {
		logger.Warnf("[monitor] balance report skipped: %v", err)
		return
	}
	if err := r.notify.SendText(text); err != nil {
		logger.Warnf("[monitor] telegram push failed (report): %v", err)
	}
}

func (r *Reporter) buildReport(ctx context.Context) (string, error) {
	balance, err := r.venue.GetBalance(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch balance: %w", err)
	}
	positions, err := r.venue.GetPositions(ctx)
	if err != nil {
		logger.Warnf("[monitor] position fetch for report: %v", err)
	}

	used := r.usage.Total()
	account := []string{
		fmt.Sprintf("wallet %s USDT", balance.Wallet.StringFixed(2)),
		fmt.Sprintf("available %s USDT", balance.Available.StringFixed(2)),
		fmt.Sprintf("used allocation %s USDT", used.StringFixed(2)),
	}
	sections := []notifier.MessageSection{{Title: "Account", Lines: account}}

	if len(positions) > 0 {
		lines := make([]string, 0, len(positions))
		for _, p := range positions {
			pnl := p.MarkPrice.Sub(p.EntryPrice).Mul(p.Amount)
			lines = append(lines, fmt.Sprintf("%s %s @ %s, mark %s, uPnL %s",
				p.Symbol, p.Amount, p.EntryPrice, p.MarkPrice, pnl.StringFixed(2)))
		}
		sections = append(sections, notifier.MessageSection{Title: "Open Positions", Lines: lines})
	}

	snap := &model.BalanceSnapshotModel{
		TotalWalletBalance: balance.Wallet.InexactFloat64(),
		AvailableBalance:   balance.Available.InexactFloat64(),
		UsedAllocationUSD:  used.InexactFloat64(),
		Note:               "periodic report",
	}
	if err := r.snapshots.Create(ctx, snap); err != nil {
		logger.Warnf("[monitor] record report snapshot: %v", err)
	}

	msg := notifier.StructuredMessage{
		Icon:      "📊",
		Title:     "Balance Report",
		Sections:  sections,
		Timestamp: time.Now().UTC(),
	}
	return msg.RenderMarkdown(), nil
}
