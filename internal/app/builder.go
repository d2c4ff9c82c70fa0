package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tvbridge/internal/config"
	"tvbridge/internal/executor"
	"tvbridge/internal/gateway/binance"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/ledger"
	"tvbridge/internal/logger"
	"tvbridge/internal/monitor"
	"tvbridge/internal/queue"
	"tvbridge/internal/rules"
	"tvbridge/internal/store"
	"tvbridge/internal/store/auditlog"
	"tvbridge/internal/store/sqlite"
	"tvbridge/internal/transport/http/intake"
)

// Builder assembles the dependency graph in order: storage, exchange,
// rules, then one queue+worker pair per enabled channel, and finally the
// HTTP intake and monitors on top. The function fields let tests swap
// storage and the exchange without touching the wiring order.
type Builder struct {
	cfg *config.Config

	storeFn    func(string) (store.Store, error)
	auditFn    func(string) (*auditlog.Store, error)
	exchangeFn func(*config.Config, binance.Recorder) (exchange.Exchange, error)
	rulesFn    func(string) (*rules.Registry, error)
}

type BuilderOption func(*Builder)

func NewBuilder(cfg *config.Config, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:        cfg,
		storeFn:    openStore,
		auditFn:    auditlog.New,
		exchangeFn: buildExchange,
		rulesFn:    rules.NewRegistry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(path string) (store.Store, error) {
	return sqlite.NewSqliteStore(path)
}

func (b *Builder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	st, err := b.storeFn(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening state store failed: %w", err)
	}
	logger.Infof("✓ State store ready at %s", cfg.App.DBPath)

	var audit *auditlog.Store
	if strings.TrimSpace(cfg.App.AuditDBPath) != "" {
		audit, err = b.auditFn(cfg.App.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit log failed: %w", err)
		}
		logger.Infof("✓ API audit log ready at %s", cfg.App.AuditDBPath)
	}

	// A nil *auditlog.Store must not be assigned to the interface
	// directly; the typed nil would defeat the client's recorder check.
	var recorder binance.Recorder
	if audit != nil {
		recorder = audit
	}

	venue, err := b.exchangeFn(cfg, recorder)
	if err != nil {
		return nil, fmt.Errorf("building exchange gateway failed: %w", err)
	}
	logger.Infof("✓ Exchange gateway: %s (testnet=%t)", venue.Name(), cfg.Exchange.Testnet)

	ruleSet, err := b.rulesFn(cfg.Trading.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading trading rules failed: %w", err)
	}
	logger.Infof("✓ Trading rules loaded from %s", cfg.Trading.RulesPath)

	led := ledger.New(st.Positions())
	usage := executor.NewUsageTracker()

	tg := newTelegram(cfg.Notify)
	var textNotifier notifier.TextNotifier = notifier.Nop{}
	if tg != nil {
		textNotifier = notifier.NewResilient(tg)
		logger.Infof("✓ Telegram notifier enabled (chat %s)", cfg.Notify.Telegram.ChatID)
	}

	channels := cfg.EnabledChannels()
	queues := queue.NewRegistry()
	workers := make([]*executor.Worker, 0, len(channels))
	for _, ch := range channels {
		q := queue.New(ch.ID, st.Signals())
		queues.Register(q)
		workers = append(workers, executor.NewWorker(executor.WorkerParams{
			Channel:     ch,
			Queue:       q,
			Store:       st,
			Ledger:      led,
			Exchange:    venue,
			Policy:      ruleSet,
			Notifier:    textNotifier,
			Usage:       usage,
			DryRun:      cfg.Exchange.DryRun,
			MaxAttempts: cfg.Trading.MaxAttempts,
			BackoffBase: time.Duration(cfg.Trading.BackoffBaseSeconds) * time.Second,
		}))
	}
	logger.Infof("✓ %d channel(s) enabled", len(channels))

	reporter := monitor.NewReporter(cfg.Monitor, venue, st.Snapshots(), queues, usage, textNotifier)
	sweeper := monitor.NewSweeper(cfg.Monitor.RiskSweep, channels, venue, st.Orders(), led, textNotifier)

	router := intake.NewRouter(intake.RouterConfig{
		Channels:  channels,
		Registry:  queues,
		Rules:     ruleSet,
		Ledger:    led,
		Orders:    st.Orders(),
		Snapshots: st.Snapshots(),
		Audit:     audit,
		Usage:     usage,
		Venue:     venue,
	})
	server, err := intake.NewServer(intake.ServerConfig{Addr: cfg.App.HTTPAddr, Routes: router})
	if err != nil {
		return nil, fmt.Errorf("building http server failed: %w", err)
	}

	return &App{
		cfg:      cfg,
		store:    st,
		audit:    audit,
		queues:   queues,
		workers:  workers,
		server:   server,
		reporter: reporter,
		sweeper:  sweeper,
		poller:   buildCommandPoller(cfg, tg, reporter, led),
		Summary:  newStartupSummary(cfg, channels, ruleSet.Current(), server.Addr()),
	}, nil
}

func buildExchange(cfg *config.Config, recorder binance.Recorder) (exchange.Exchange, error) {
	client, err := binance.New(binance.Config{
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		Testnet:      cfg.Exchange.Testnet,
		RESTBaseURL:  cfg.Exchange.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		ProxyEnabled: cfg.Exchange.Proxy.Enabled,
		RESTProxyURL: cfg.Exchange.Proxy.RESTURL,
	}, recorder)
	if err != nil {
		return nil, err
	}
	if cfg.Exchange.DryRun {
		logger.Infof("✓ DRY-RUN mode: orders are simulated, account reads stay live")
		return exchange.NewDryRun(client), nil
	}
	return client, nil
}

func newTelegram(cfg config.NotifyConfig) *notifier.Telegram {
	if !cfg.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "" {
		logger.Warnf("telegram enabled but bot_token/chat_id missing, notifications disabled")
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

// buildCommandPoller wires the operator commands. Nil when Telegram is off
// or commands are not enabled; the app simply skips the goroutine then.
func buildCommandPoller(cfg *config.Config, tg *notifier.Telegram, reporter *monitor.Reporter, led *ledger.Ledger) *notifier.CommandPoller {
	if tg == nil || !cfg.Notify.Telegram.Commands {
		return nil
	}
	mode := "live"
	if cfg.Exchange.DryRun {
		mode = "dry-run"
	}
	p := notifier.NewCommandPoller(tg)
	p.Handle("/status", func(ctx context.Context) string {
		return fmt.Sprintf("mode: %s\n%s", mode, reporter.StatusText(ctx))
	})
	p.Handle("/positions", func(ctx context.Context) string {
		recs, err := led.List(ctx)
		if err != nil {
			return fmt.Sprintf("positions unavailable: %v", err)
		}
		if len(recs) == 0 {
			return "no open positions"
		}
		lines := make([]string, 0, len(recs))
		for _, rec := range recs {
			lines = append(lines, fmt.Sprintf("%s %s %s @ %s %dx (%s)",
				rec.Symbol, rec.Side, rec.Quantity.String(), rec.EntryPrice.String(), rec.Leverage, rec.Channel))
		}
		return strings.Join(lines, "\n")
	})
	p.Handle("/report", reporter.ReportNow)
	return p
}

func WithStore(fn func(string) (store.Store, error)) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}

func WithAuditLog(fn func(string) (*auditlog.Store, error)) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.auditFn = fn
		}
	}
}

func WithExchange(fn func(*config.Config, binance.Recorder) (exchange.Exchange, error)) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.exchangeFn = fn
		}
	}
}

func WithRules(fn func(string) (*rules.Registry, error)) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.rulesFn = fn
		}
	}
}
