package app

import (
	"context"
	"errors"
	"fmt"

	"tvbridge/internal/config"
	"tvbridge/internal/executor"
	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/logger"
	"tvbridge/internal/monitor"
	"tvbridge/internal/queue"
	"tvbridge/internal/store"
	"tvbridge/internal/store/auditlog"
	"tvbridge/internal/transport/http/intake"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: load config, build the
// dependency graph, recover queues, then run every service until the
// context ends.
type App struct {
	cfg      *config.Config
	store    store.Store
	audit    *auditlog.Store
	queues   *queue.Registry
	workers  []*executor.Worker
	server   *intake.Server
	reporter *monitor.Reporter
	sweeper  *monitor.Sweeper
	poller   *notifier.CommandPoller
	Summary  *StartupSummary
}

// New builds the application object from config (does not start it).
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return NewBuilder(cfg).Build(context.Background())
}

// Run replays persisted queue state and starts every service. It blocks
// until ctx is cancelled or a service fails, then closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	// Pending rows must be back in memory before any worker starts;
	// a webhook landing mid-recovery would otherwise jump the line.
	for _, q := range a.queues.All() {
		n, err := q.Recover(ctx)
		if err != nil {
			return fmt.Errorf("queue %s recovery failed: %w", q.Channel(), err)
		}
		if n > 0 {
			logger.Infof("[app] queue %s recovered %d pending signals", q.Channel(), n)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, w := range a.workers {
		w := w // per-iteration copy: required under go <1.22 so each goroutine gets its own worker
		group.Go(func() error {
			return w.Run(ctx)
		})
	}

	group.Go(func() error {
		return a.reporter.RunHeartbeat(ctx)
	})
	group.Go(func() error {
		return a.reporter.RunBalanceReport(ctx)
	})
	group.Go(func() error {
		return a.sweeper.Run(ctx)
	})

	if a.poller != nil {
		group.Go(func() error {
			// The poller surfaces ctx.Err() when the context ends;
			// a graceful shutdown is not a failure.
			if err := a.poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			logger.Warnf("[app] audit store close failed: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("[app] store close failed: %v", err)
		}
	}
}
