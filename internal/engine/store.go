// Package engine implements the position risk-management engine: an explicit
// store of open positions keyed by token address, a deterministic per-tick
// transition function (stop-loss, breakeven, trailing stop, take-profit
// ladder), and the price monitor that drives it. Positions are mutated only
// through Register and Evaluate; accessors hand out copies.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// SellExecutor is the slice of the trade-execution service the engine needs:
// percentage sells against an existing position. Percentages are expressed
// against the original position size; the service clamps to what remains.
type SellExecutor interface {
	SellPercentage(ctx context.Context, positionID string, pct float64) (domain.SellResult, error)
}

// Alerter receives the engine's typed outcome notifications. Delivery is
// fire-and-forget; implementations must never block the transition path.
type Alerter interface {
	PartialExit(ctx context.Context, pos domain.Position, level domain.TakeProfitLevel, price float64)
	TradeClosed(ctx context.Context, rec domain.TradeRecord)
	StopRaised(ctx context.Context, pos domain.Position, oldFloor, newFloor float64, breakeven bool)
	TrailingEngaged(ctx context.Context, pos domain.Position, price float64)
	Alert(ctx context.Context, title, message string)
}

// failureAlertThreshold is how many consecutive sell failures on one token
// are tolerated before the operator is alerted.
const failureAlertThreshold = 3

// Engine owns every open position and applies the risk state machine to each
// price observation. It is constructed once at startup with its collaborators
// injected; there is no global instance.
type Engine struct {
	risk   domain.RiskConfig
	exec   SellExecutor
	alerts Alerter
	trades domain.TradeStore // optional; nil disables history persistence
	audit  domain.AuditStore // optional
	bus    domain.SignalBus  // optional
	logger *slog.Logger

	// mu serializes all position mutation: tick-driven transitions and
	// emergency liquidations. Ticks are already sequential; the lock makes
	// the emergency sweep safe against an in-progress tick.
	mu        sync.Mutex
	positions map[string]*domain.Position
	failures  map[string]int // consecutive sell failures per token
}

// New creates an Engine. trades, audit, and bus may be nil; the risk config
// must already be validated.
func New(
	risk domain.RiskConfig,
	exec SellExecutor,
	alerts Alerter,
	trades domain.TradeStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		risk:      risk,
		exec:      exec,
		alerts:    alerts,
		trades:    trades,
		audit:     audit,
		bus:       bus,
		logger:    logger.With(slog.String("component", "engine")),
		positions: make(map[string]*domain.Position),
		failures:  make(map[string]int),
	}
}

// Register creates a position record for a confirmed buy. The stop floor and
// highest-seen price are initialized from the entry price. It returns
// domain.ErrAlreadyExists when the token is already tracked.
func (e *Engine) Register(ctx context.Context, tokenAddress, symbol, positionID string, entryPrice, entryAmount float64) (domain.Position, error) {
	if entryPrice <= 0 || entryAmount <= 0 {
		return domain.Position{}, fmt.Errorf("engine: register %s: non-positive entry (price=%.8f amount=%.4f)", tokenAddress, entryPrice, entryAmount)
	}

	floor := e.risk.InitialFloor(entryPrice)
	pos := &domain.Position{
		TokenAddress:     tokenAddress,
		Symbol:           symbol,
		PositionID:       positionID,
		EntryPrice:       entryPrice,
		EntryAmount:      entryAmount,
		RemainingAmount:  entryAmount,
		CurrentStopLoss:  floor,
		InitialStopLoss:  floor,
		HighestPriceSeen: entryPrice,
		ExecutedLevels:   make(map[int]bool),
		OpenedAt:         time.Now().UTC(),
	}

	e.mu.Lock()
	if _, exists := e.positions[tokenAddress]; exists {
		e.mu.Unlock()
		return domain.Position{}, domain.ErrAlreadyExists
	}
	e.positions[tokenAddress] = pos
	snapshot := pos.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "position opened",
		slog.String("token", tokenAddress),
		slog.String("symbol", symbol),
		slog.Float64("entry_price", entryPrice),
		slog.Float64("amount", entryAmount),
		slog.Float64("stop_loss", floor),
	)
	e.publish(ctx, "position_opened", map[string]any{
		"token":       tokenAddress,
		"symbol":      symbol,
		"entry_price": entryPrice,
		"amount":      entryAmount,
		"stop_loss":   floor,
	})

	return snapshot, nil
}

// Get returns a copy of the position for the given token.
func (e *Engine) Get(tokenAddress string) (domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[tokenAddress]
	if !ok {
		return domain.Position{}, false
	}
	return pos.Clone(), true
}

// List returns copies of all open positions.
func (e *Engine) List() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, pos.Clone())
	}
	return out
}

// Tokens returns the addresses of all open positions.
func (e *Engine) Tokens() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.positions))
	for token := range e.positions {
		out = append(out, token)
	}
	return out
}

// Count returns the number of open positions.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.positions)
}

// remove deletes a closed position and its failure counter. Callers must
// hold e.mu.
func (e *Engine) remove(tokenAddress string) {
	delete(e.positions, tokenAddress)
	delete(e.failures, tokenAddress)
}

// closeOut persists and announces a fully exited position. Callers must hold
// e.mu; the position is removed from the store before any I/O fires.
func (e *Engine) closeOut(ctx context.Context, pos *domain.Position, exitPrice float64, reason domain.ExitReason) domain.TradeRecord {
	pnlPct := pos.ProfitPercent(exitPrice)
	rec := domain.TradeRecord{
		ID:           uuid.New().String(),
		TokenAddress: pos.TokenAddress,
		Symbol:       pos.Symbol,
		EntryPrice:   pos.EntryPrice,
		EntryAmount:  pos.EntryAmount,
		ExitPrice:    exitPrice,
		SoldPct:      pos.TotalSoldPct,
		PnL:          pos.EntryAmount * pnlPct / 100,
		PnLPercent:   pnlPct,
		Reason:       reason,
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     time.Now().UTC(),
	}
	e.remove(pos.TokenAddress)

	if e.trades != nil {
		if err := e.trades.Insert(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "trade history insert failed",
				slog.String("token", rec.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(ctx, "position_closed", map[string]any{
		"token":       rec.TokenAddress,
		"exit_price":  rec.ExitPrice,
		"pnl_percent": rec.PnLPercent,
		"reason":      string(rec.Reason),
	})
	e.alerts.TradeClosed(ctx, rec)
	e.logger.InfoContext(ctx, "position closed",
		slog.String("token", rec.TokenAddress),
		slog.String("reason", string(rec.Reason)),
		slog.Float64("exit_price", rec.ExitPrice),
		slog.Float64("pnl_percent", rec.PnLPercent),
	)
	return rec
}

// publish mirrors an event onto the audit log and the signal bus when those
// collaborators are wired. Failures are logged and swallowed.
func (e *Engine) publish(ctx context.Context, event string, detail map[string]any) {
	if e.audit != nil {
		if err := e.audit.Log(ctx, event, detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		payload := encodeEvent(event, detail)
		if err := e.bus.Publish(ctx, "positions", payload); err != nil {
			e.logger.WarnContext(ctx, "bus publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
		// The capped stream keeps a replayable history for consumers that
		// were not subscribed when the event fired.
		if err := e.bus.StreamAppend(ctx, "position_events", payload); err != nil {
			e.logger.WarnContext(ctx, "stream append failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
