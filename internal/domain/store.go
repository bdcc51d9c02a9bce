package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists submitted orders and their terminal states.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Order, error)
}

// TradeStore persists committed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListSince(ctx context.Context, since time.Time) ([]Trade, error)
}

// PositionStore persists per-user per-bucket positions. ReplaceMarket swaps
// every row of a market in one transaction; it is the persistence half of a
// grid split's atomic remap.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	ReplaceMarket(ctx context.Context, marketID string, positions []Position) error
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, user string) ([]Position, error)
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of operator and risk events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
