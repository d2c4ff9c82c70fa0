// Package executor runs one worker per channel: it drains the channel's
// queue and turns each signal into a sized, risk-checked market order on the
// venue. A failed step either retries with backoff (transient) or fails the
// item terminally (permanent); nothing is ever silently dropped.
package executor

import (
	"context"
	"errors"
	"time"

	"tvbridge/internal/config"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/ledger"
	"tvbridge/internal/logger"
	"tvbridge/internal/queue"
	"tvbridge/internal/rules"
	"tvbridge/internal/store"
)

// Policy is the slice of the rules registry the worker consumes.
type Policy interface {
	ResolveLeverage(channelDefault int, symbol string, hint int) int
	Current() rules.Rules
}

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = time.Second
	maxBackoffDelay    = 5 * time.Minute
)

// WorkerParams wires one worker. Queue, Store, Ledger, Exchange and Policy
// are required; the rest default sensibly.
type WorkerParams struct {
	Channel  config.ChannelConfig
	Queue    *queue.Queue
	Store    store.Store
	Ledger   *ledger.Ledger
	Exchange exchange.Exchange
	Policy   Policy
	Notifier notifier.TextNotifier
	Usage    *UsageTracker

	DryRun      bool
	MaxAttempts int
	BackoffBase time.Duration
}

// Worker owns the execution loop for a single channel.
type Worker struct {
	channel config.ChannelConfig
	queue   *queue.Queue
	store   store.Store
	ledger  *ledger.Ledger
	venue   exchange.Exchange
	policy  Policy
	notify  notifier.TextNotifier
	usage   *UsageTracker

	dryRun      bool
	maxAttempts int
	backoffBase time.Duration
}

func NewWorker(p WorkerParams) *Worker {
	w := &Worker{
		channel:     p.Channel,
		queue:       p.Queue,
		store:       p.Store,
		ledger:      p.Ledger,
		venue:       p.Exchange,
		policy:      p.Policy,
		notify:      p.Notifier,
		usage:       p.Usage,
		dryRun:      p.DryRun,
		maxAttempts: p.MaxAttempts,
		backoffBase: p.BackoffBase,
	}
	if w.notify == nil {
		w.notify = notifier.Nop{}
	}
	if w.usage == nil {
		w.usage = NewUsageTracker()
	}
	if w.maxAttempts < 1 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.backoffBase <= 0 {
		w.backoffBase = defaultBackoffBase
	}
	return w
}

// Run drains the queue until ctx is cancelled. It never returns an error:
// item failures are handled per item, and cancellation is a normal stop.
func (w *Worker) Run(ctx context.Context) error {
	logger.Infof("[worker:%s] started on %s (dry_run=%t max_attempts=%d)",
		w.channel.ID, w.venue.Name(), w.dryRun, w.maxAttempts)
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			logger.Infof("[worker:%s] stopped", w.channel.ID)
			return nil
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	if err := w.queue.MarkProcessing(ctx, item.ID); err != nil {
		// The durable row lags behind but the item itself is safe to run.
		logger.Warnf("[worker:%s] mark event %d processing: %v", w.channel.ID, item.ID, err)
	}

	started := time.Now()
	out, err := w.execute(ctx, item)
	if err == nil {
		if out.skipped {
			if cerr := w.queue.Complete(ctx, item.ID); cerr != nil {
				logger.Errorf("[worker:%s] complete skipped event %d: %v", w.channel.ID, item.ID, cerr)
			}
			return
		}
		logger.Infof("[worker:%s] event %d executed in %s: %s %s %s @ %s lev=%dx order=%d",
			w.channel.ID, item.ID, time.Since(started).Round(time.Millisecond),
			item.Signal.Direction, out.quantity, item.Signal.Symbol, out.price, out.leverage, out.orderID)
		w.notifyExecuted(item, out)
		return
	}

	if shouldRetry(err) {
		w.scheduleRetry(ctx, item, err)
		return
	}

	logger.Errorf("[worker:%s] event %d failed terminally: %v", w.channel.ID, item.ID, err)
	if merr := w.queue.MarkFailed(ctx, item.ID, err.Error()); merr != nil {
		logger.Errorf("[worker:%s] mark event %d failed: %v", w.channel.ID, item.ID, merr)
	}
	w.notifyFailed(item, err)
}

// scheduleRetry sleeps out the backoff, then puts the item back at the tail
// of the queue. Items past the attempt budget are flagged for the operator
// but keep cycling; discarding a trade signal is worse than nagging about it.
func (w *Worker) scheduleRetry(ctx context.Context, item queue.Item, cause error) {
	item.Retries++
	delay := w.backoffDelay(item.Retries)
	if item.Retries > w.maxAttempts && !item.Flagged {
		item.Flagged = true
		logger.Errorf("[worker:%s] event %d exceeded %d attempts, flagged for review: %v",
			w.channel.ID, item.ID, w.maxAttempts, cause)
		w.notifyFlagged(item, cause)
	}
	logger.Warnf("[worker:%s] event %d attempt %d failed: %v (retry in %s)",
		w.channel.ID, item.ID, item.Retries, cause, delay)

	if !sleepWithContext(ctx, delay) {
		// Shutting down: skip the wait but still persist the pending state so
		// the restart recovery replays this item.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.queue.Requeue(rctx, item, cause.Error()); err != nil {
			logger.Errorf("[worker:%s] requeue event %d on shutdown: %v", w.channel.ID, item.ID, err)
		}
		return
	}
	if err := w.queue.Requeue(ctx, item, cause.Error()); err != nil {
		logger.Errorf("[worker:%s] requeue event %d: %v", w.channel.ID, item.ID, err)
	}
}

// backoffDelay doubles per attempt and plateaus once the attempt budget is
// reached, so flagged items keep retrying at the ceiling instead of growing
// without bound.
func (w *Worker) backoffDelay(attempt int) time.Duration {
	exp := attempt - 1
	if ceil := w.maxAttempts - 1; exp > ceil {
		exp = ceil
	}
	delay := w.backoffBase
	for i := 0; i < exp; i++ {
		delay *= 2
		if delay >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryable marks a non-venue failure (storage, ledger reads) worth another
// attempt. Venue errors carry their own classification via exchange.Error.
type retryable struct{ err error }

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

func asRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryable{err: err}
}

// fatal forces an error terminal even when the underlying venue error was
// classified transient. Used where retrying cannot be safe, like anything
// after an order was already placed.
type fatal struct{ err error }

func (f *fatal) Error() string { return f.err.Error() }
func (f *fatal) Unwrap() error { return f.err }

func asFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatal{err: err}
}

func shouldRetry(err error) bool {
	var f *fatal
	if errors.As(err, &f) {
		return false
	}
	var r *retryable
	if errors.As(err, &r) {
		return true
	}
	return exchange.IsTransient(err)
}
