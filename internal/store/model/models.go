package model

import (
	"gorm.io/datatypes"
)

type SignalStatus int

const (
	SignalStatusPending    SignalStatus = 0
	SignalStatusProcessing SignalStatus = 1
	SignalStatusCompleted  SignalStatus = 2
	SignalStatusFailed     SignalStatus = 3
)

func (s SignalStatus) String() string {
	switch s {
	case SignalStatusPending:
		return "pending"
	case SignalStatusProcessing:
		return "processing"
	case SignalStatusCompleted:
		return "completed"
	case SignalStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignalEventModel is one queued signal. Rows are written before the item
// enters the in-memory queue and survive restarts; pending rows are replayed
// in id order on startup.
type SignalEventModel struct {
	ID            uint           `gorm:"column:id;primaryKey"`
	Channel       string         `gorm:"column:channel;index:idx_signal_events_channel_status,priority:1"`
	Symbol        string         `gorm:"column:symbol"`
	Direction     string         `gorm:"column:direction"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	Status        SignalStatus   `gorm:"column:status;index:idx_signal_events_channel_status,priority:2"`
	Retries       int            `gorm:"column:retries"`
	Flagged       bool           `gorm:"column:flagged"`
	LastError     string         `gorm:"column:last_error"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (SignalEventModel) TableName() string { return "signal_events" }

// OrderModel is an append-only audit row for every order sent (or simulated).
// Quantity and Price keep the exact wire strings so the audit trail shows
// precisely what the exchange was asked for.
type OrderModel struct {
	ID            int64          `gorm:"column:id;primaryKey" json:"id"`
	Channel       string         `gorm:"column:channel;index" json:"channel"`
	Symbol        string         `gorm:"column:symbol;index" json:"symbol"`
	Side          string         `gorm:"column:side" json:"side"`
	Quantity      string         `gorm:"column:quantity" json:"quantity"`
	Price         string         `gorm:"column:price" json:"price"`
	Leverage      int            `gorm:"column:leverage" json:"leverage"`
	Notional      float64        `gorm:"column:notional" json:"notional"`
	OrderID       int64          `gorm:"column:order_id" json:"order_id"`
	ClientOrderID string         `gorm:"column:client_order_id" json:"client_order_id"`
	ReduceOnly    bool           `gorm:"column:reduce_only" json:"reduce_only"`
	DryRun        bool           `gorm:"column:dry_run" json:"dry_run"`
	Warning       string         `gorm:"column:warning" json:"warning,omitempty"`
	Response      datatypes.JSON `gorm:"column:response;type:TEXT" json:"response,omitempty"`
	CreatedAtUnix int64          `gorm:"column:created_at" json:"created_at"`
}

func (OrderModel) TableName() string { return "orders" }

// PositionModel is the persisted ledger state: at most one row per
// (channel, symbol), removed when the position is closed.
type PositionModel struct {
	ID            uint   `gorm:"column:id;primaryKey"`
	Channel       string `gorm:"column:channel;uniqueIndex:idx_positions_channel_symbol,priority:1"`
	Symbol        string `gorm:"column:symbol;uniqueIndex:idx_positions_channel_symbol,priority:2"`
	Side          string `gorm:"column:side"`
	Quantity      string `gorm:"column:quantity"`
	EntryPrice    string `gorm:"column:entry_price"`
	Leverage      int    `gorm:"column:leverage"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type BalanceSnapshotModel struct {
	ID                 int64   `gorm:"column:id;primaryKey" json:"id"`
	TotalWalletBalance float64 `gorm:"column:total_wallet_balance" json:"total_wallet_balance"`
	AvailableBalance   float64 `gorm:"column:available_balance" json:"available_balance"`
	UsedAllocationUSD  float64 `gorm:"column:used_allocation_usd" json:"used_allocation_usd"`
	Note               string  `gorm:"column:note" json:"note,omitempty"`
	CreatedAtUnix      int64   `gorm:"column:created_at" json:"created_at"`
}

func (BalanceSnapshotModel) TableName() string { return "balance_snapshots" }
