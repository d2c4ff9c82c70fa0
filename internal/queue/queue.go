// Package queue implements the per-channel durable FIFO between webhook
// intake and the execution worker. Every item is written to the store as
// "pending" before it enters the in-memory buffer, so a restart replays
// exactly what was accepted but not yet resolved.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"tvbridge/internal/logger"
	"tvbridge/internal/signal"
	"tvbridge/internal/store"
	"tvbridge/internal/store/model"
)

// Item is one queued signal together with its durable identity and retry
// state. The worker carries it through pending -> processing -> completed or
// failed, with a processing -> pending edge on retryable errors.
type Item struct {
	ID         uint
	Channel    string
	Signal     signal.Signal
	EnqueuedAt time.Time
	Retries    int
	Flagged    bool
}

const defaultBufferSize = 4096

// Queue is the durable FIFO for one channel. The in-memory buffer only ever
// holds items that already exist as pending rows; losing the buffer loses
// nothing.
type Queue struct {
	channel string
	signals store.SignalRepository
	items   chan Item
}

func New(channel string, signals store.SignalRepository) *Queue {
	return &Queue{
		channel: channel,
		signals: signals,
		items:   make(chan Item, defaultBufferSize),
	}
}

func (q *Queue) Channel() string { return q.channel }

// Depth is the number of items currently buffered in memory.
func (q *Queue) Depth() int { return len(q.items) }

// Enqueue persists the signal as a pending event, then hands it to the
// in-memory buffer. The returned id is the durable queue id the intake
// acknowledgement carries. A full buffer is not an error: the row stays
// pending and is replayed on the next restart.
func (q *Queue) Enqueue(ctx context.Context, sig signal.Signal) (uint, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return 0, fmt.Errorf("encode signal payload: %w", err)
	}
	event := &model.SignalEventModel{
		Channel:   q.channel,
		Symbol:    sig.Symbol,
		Direction: string(sig.Direction),
		Payload:   datatypes.JSON(payload),
		Status:    model.SignalStatusPending,
	}
	if err := q.signals.Create(ctx, event); err != nil {
		return 0, fmt.Errorf("persist signal event: %w", err)
	}
	item := Item{
		ID:         event.ID,
		Channel:    q.channel,
		Signal:     sig,
		EnqueuedAt: time.Unix(event.CreatedAtUnix, 0),
	}
	q.push(item)
	return event.ID, nil
}

func (q *Queue) push(item Item) {
	select {
	case q.items <- item:
	default:
		logger.Warnf("[queue:%s] memory buffer full, event %d stays pending until restart",
			q.channel, item.ID)
	}
}

// Dequeue blocks until an item is available or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return Item{}, ctx.Err()
	case item := <-q.items:
		return item, nil
	}
}

// Recover loads every pending row for this channel in ascending id order and
// refills the in-memory buffer. Must run before the channel's worker starts
// so replayed items keep their original arrival order.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	events, err := q.signals.ListPending(ctx, q.channel)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}
	recovered := 0
	for i := range events {
		event := &events[i]
		var sig signal.Signal
		if err := json.Unmarshal(event.Payload, &sig); err != nil {
			logger.Errorf("[queue:%s] event %d has unreadable payload, marking failed: %v",
				q.channel, event.ID, err)
			if merr := q.signals.UpdateStatus(ctx, event.ID, model.SignalStatusFailed,
				fmt.Sprintf("unreadable payload: %v", err)); merr != nil {
				logger.Errorf("[queue:%s] mark event %d failed: %v", q.channel, event.ID, merr)
			}
			continue
		}
		q.push(Item{
			ID:         event.ID,
			Channel:    q.channel,
			Signal:     sig,
			EnqueuedAt: time.Unix(event.CreatedAtUnix, 0),
			Retries:    event.Retries,
			Flagged:    event.Flagged,
		})
		recovered++
	}
	if recovered > 0 {
		logger.Infof("[queue:%s] recovered %d pending signal(s)", q.channel, recovered)
	}
	return recovered, nil
}

// MarkProcessing flips the durable row to processing when the worker picks
// the item up.
func (q *Queue) MarkProcessing(ctx context.Context, id uint) error {
	return q.signals.UpdateStatus(ctx, id, model.SignalStatusProcessing, "")
}

// MarkFailed terminally fails the item. Used for permanent errors only.
func (q *Queue) MarkFailed(ctx context.Context, id uint, reason string) error {
	return q.signals.UpdateStatus(ctx, id, model.SignalStatusFailed, reason)
}

// Complete finishes an item that produced no order (duplicate entries). Items
// that did place an order are completed inside the worker's transaction
// instead.
func (q *Queue) Complete(ctx context.Context, id uint) error {
	return q.signals.UpdateStatus(ctx, id, model.SignalStatusCompleted, "")
}

// Requeue puts the item back at the tail of the FIFO with its updated retry
// state. The durable row goes back to pending first so the item survives a
// crash between the two steps.
func (q *Queue) Requeue(ctx context.Context, item Item, reason string) error {
	if err := q.signals.Requeue(ctx, item.ID, item.Retries, item.Flagged, reason); err != nil {
		return fmt.Errorf("requeue event %d: %w", item.ID, err)
	}
	q.push(item)
	return nil
}

// Stats summarizes the channel's durable rows plus the live buffer depth.
type Stats struct {
	Channel    string `json:"channel"`
	Depth      int    `json:"depth"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	counts, err := q.signals.CountByStatus(ctx, q.channel)
	if err != nil {
		return Stats{}, fmt.Errorf("count signal events: %w", err)
	}
	return Stats{
		Channel:    q.channel,
		Depth:      q.Depth(),
		Pending:    counts[model.SignalStatusPending],
		Processing: counts[model.SignalStatusProcessing],
		Completed:  counts[model.SignalStatusCompleted],
		Failed:     counts[model.SignalStatusFailed],
	}, nil
}
