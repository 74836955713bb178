package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeColumns = `id, token_address, symbol, entry_price, entry_amount,
	exit_price, sold_pct, pnl, pnl_percent, reason, opened_at, closed_at`

// Insert records one closed trade.
func (s *TradeStore) Insert(ctx context.Context, trade domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.TokenAddress, trade.Symbol,
		trade.EntryPrice, trade.EntryAmount, trade.ExitPrice,
		trade.SoldPct, trade.PnL, trade.PnLPercent,
		string(trade.Reason), trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListRecent returns closed trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY closed_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListBefore returns up to limit trades closed before the cutoff, oldest
// first, for archival.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradeRecord, error) {
	const query = `
		SELECT ` + tradeColumns + ` FROM trades
		WHERE closed_at < $1
		ORDER BY closed_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// Delete removes the trades with the given IDs and reports how many rows
// went away. The archiver deletes exactly the rows it has uploaded, never a
// time range, so a backlog larger than one batch survives until its own
// upload confirms.
func (s *TradeStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete %d trades: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

// SumPnL totals realized profit and loss for trades closed since the given
// time.
func (s *TradeStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE closed_at >= $1`, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return total, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrades(rows pgxRows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var reason string
		if err := rows.Scan(
			&t.ID, &t.TokenAddress, &t.Symbol,
			&t.EntryPrice, &t.EntryAmount, &t.ExitPrice,
			&t.SoldPct, &t.PnL, &t.PnLPercent,
			&reason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Reason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
