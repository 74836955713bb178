package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists closed trades.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]TradeRecord, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}

// AuditStore persists an append-only audit log. The log is written for
// offline inspection; nothing in the bot reads it back.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
