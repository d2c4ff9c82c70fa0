// Package ledger tracks bridge-owned positions per channel and symbol. The
// venue account is shared state; this ledger is the bridge's own view of
// what it opened, which drives flip handling and idempotent re-entries.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tvbridge/internal/signal"
	"tvbridge/internal/store"
	"tvbridge/internal/store/model"
)

// Record is one open position owned by a channel.
type Record struct {
	Channel    string           `json:"channel"`
	Symbol     string           `json:"symbol"`
	Side       signal.Direction `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Leverage   int              `json:"leverage"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Ledger layers an in-memory cache over the positions table. Reads hit the
// cache first so the execution hot path stays off the database; writes that
// happen inside a caller-owned transaction are mirrored in via Prime/Evict
// after commit.
type Ledger struct {
	mu        sync.RWMutex
	cache     map[string]Record
	positions store.PositionRepository
}

func New(positions store.PositionRepository) *Ledger {
	return &Ledger{
		cache:     map[string]Record{},
		positions: positions,
	}
}

func key(channel, symbol string) string {
	return strings.ToLower(channel) + "/" + strings.ToUpper(symbol)
}

// Get returns the channel's open position for symbol, nil when flat.
func (l *Ledger) Get(ctx context.Context, channel, symbol string) (*Record, error) {
	k := key(channel, symbol)
	l.mu.RLock()
	if rec, ok := l.cache[k]; ok {
		l.mu.RUnlock()
		cp := rec
		return &cp, nil
	}
	l.mu.RUnlock()

	m, err := l.positions.Find(ctx, channel, symbol)
	if err != nil {
		return nil, fmt.Errorf("load position %s/%s: %w", channel, symbol, err)
	}
	if m == nil {
		return nil, nil
	}
	rec, err := fromModel(m)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[k] = rec
	l.mu.Unlock()
	cp := rec
	return &cp, nil
}

// Upsert persists the record and refreshes the cache.
func (l *Ledger) Upsert(ctx context.Context, rec Record) error {
	if rec.Channel == "" || rec.Symbol == "" {
		return fmt.Errorf("position record needs channel and symbol")
	}
	rec.Symbol = strings.ToUpper(rec.Symbol)
	rec.UpdatedAt = time.Now()
	if err := l.positions.Upsert(ctx, toModel(rec)); err != nil {
		return fmt.Errorf("persist position %s/%s: %w", rec.Channel, rec.Symbol, err)
	}
	l.Prime(rec)
	return nil
}

// Clear removes the channel's position for symbol from storage and cache.
func (l *Ledger) Clear(ctx context.Context, channel, symbol string) error {
	if err := l.positions.Delete(ctx, channel, symbol); err != nil {
		return fmt.Errorf("delete position %s/%s: %w", channel, symbol, err)
	}
	l.Evict(channel, symbol)
	return nil
}

// Prime updates only the cache. Use it after committing a transaction that
// already wrote the row through its own repository handle.
func (l *Ledger) Prime(rec Record) {
	rec.Symbol = strings.ToUpper(rec.Symbol)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	l.mu.Lock()
	l.cache[key(rec.Channel, rec.Symbol)] = rec
	l.mu.Unlock()
}

// Evict drops only the cache entry, the storage counterpart of Prime.
func (l *Ledger) Evict(channel, symbol string) {
	l.mu.Lock()
	delete(l.cache, key(channel, symbol))
	l.mu.Unlock()
}

// List returns every stored position, bypassing the cache.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for i := range rows {
		rec, rerr := fromModel(&rows[i])
		if rerr != nil {
			return nil, rerr
		}
		out = append(out, rec)
	}
	return out, nil
}

func toModel(rec Record) *model.PositionModel {
	return &model.PositionModel{
		Channel:       rec.Channel,
		Symbol:        rec.Symbol,
		Side:          string(rec.Side),
		Quantity:      rec.Quantity.String(),
		EntryPrice:    rec.EntryPrice.String(),
		Leverage:      rec.Leverage,
		UpdatedAtUnix: rec.UpdatedAt.Unix(),
	}
}

func fromModel(m *model.PositionModel) (Record, error) {
	qty, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return Record{}, fmt.Errorf("position %s/%s has bad quantity %q: %w", m.Channel, m.Symbol, m.Quantity, err)
	}
	entry, err := decimal.NewFromString(m.EntryPrice)
	if err != nil {
		return Record{}, fmt.Errorf("position %s/%s has bad entry price %q: %w", m.Channel, m.Symbol, m.EntryPrice, err)
	}
	return Record{
		Channel:    m.Channel,
		Symbol:     m.Symbol,
		Side:       signal.Direction(m.Side),
		Quantity:   qty,
		EntryPrice: entry,
		Leverage:   m.Leverage,
		UpdatedAt:  time.Unix(m.UpdatedAtUnix, 0),
	}, nil
}
