package store

import (
	"context"

	"tvbridge/internal/store/model"
)

// UnitOfWork defines a transaction scope. The execution worker uses one to
// commit an order, the position change, a balance snapshot and the signal
// completion as a single atomic write.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	Signals() SignalRepository
	Orders() OrderRepository
	Positions() PositionRepository
	Snapshots() SnapshotRepository
}

// Store is the entry point for database access. Repository accessors operate
// outside any transaction; Begin opens a UnitOfWork for atomic writes.
type Store interface {
	Signals() SignalRepository
	Orders() OrderRepository
	Positions() PositionRepository
	Snapshots() SnapshotRepository

	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}

// SignalRepository persists queued signal events and their status machine.
type SignalRepository interface {
	Create(ctx context.Context, event *model.SignalEventModel) error
	// ListPending returns pending events for a channel in ascending id order,
	// the order restart recovery must replay them in.
	ListPending(ctx context.Context, channel string) ([]model.SignalEventModel, error)
	UpdateStatus(ctx context.Context, id uint, status model.SignalStatus, lastError string) error
	// Requeue moves an event back to pending with its new retry count, flag
	// state and the error that caused the retry. Used by the retry policy;
	// never deletes.
	Requeue(ctx context.Context, id uint, retries int, flagged bool, lastError string) error
	CountByStatus(ctx context.Context, channel string) (map[model.SignalStatus]int64, error)
}

// OrderRepository is append-only; order rows are an audit trail.
type OrderRepository interface {
	Create(ctx context.Context, order *model.OrderModel) error
	ListRecent(ctx context.Context, channel, symbol string, limit int) ([]model.OrderModel, error)
}

// PositionRepository stores the ledger's persisted state.
type PositionRepository interface {
	Upsert(ctx context.Context, position *model.PositionModel) error
	// Find returns (nil, nil) when no position exists.
	Find(ctx context.Context, channel, symbol string) (*model.PositionModel, error)
	Delete(ctx context.Context, channel, symbol string) error
	List(ctx context.Context) ([]model.PositionModel, error)
}

// SnapshotRepository records point-in-time balance/usage rows.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *model.BalanceSnapshotModel) error
	ListRecent(ctx context.Context, limit int) ([]model.BalanceSnapshotModel, error)
	Latest(ctx context.Context) (*model.BalanceSnapshotModel, error)
}
