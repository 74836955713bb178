package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Evaluate feeds one price observation into the state machine for the given
// token. The checks run in a fixed order and stop early once the position
// closes: stop-loss, breakeven move, trailing activation, trailing floor
// update, take-profit ladder. The highest-seen price is refreshed before any
// check runs. It returns true when the position was fully closed this tick.
func (e *Engine) Evaluate(ctx context.Context, tokenAddress string, price float64) (bool, error) {
	if price <= 0 {
		return false, fmt.Errorf("engine: evaluate %s: %w", tokenAddress, domain.ErrNoPrice)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[tokenAddress]
	if !ok {
		return false, domain.ErrNotFound
	}

	if price > pos.HighestPriceSeen {
		pos.HighestPriceSeen = price
	}

	// 1. Stop-loss. Capital preservation runs before any profit-taking.
	if price <= pos.CurrentStopLoss {
		return e.liquidateLocked(ctx, pos, price, stopReason(pos)), nil
	}

	profitPct := pos.ProfitPercent(price)

	// 2. Breakeven move: a one-time, irreversible upgrade of the floor.
	if !pos.BreakevenMoved && e.risk.Breakeven.Enabled && profitPct >= e.risk.Breakeven.TriggerProfitPct {
		newFloor := pos.EntryPrice * (1 + e.risk.Breakeven.OffsetPct/100)
		pos.BreakevenMoved = true
		if newFloor > pos.CurrentStopLoss {
			old := pos.CurrentStopLoss
			pos.CurrentStopLoss = newFloor
			snapshot := pos.Clone()
			e.alerts.StopRaised(ctx, snapshot, old, newFloor, true)
			e.logger.InfoContext(ctx, "breakeven floor set",
				slog.String("token", pos.TokenAddress),
				slog.Float64("old_floor", old),
				slog.Float64("new_floor", newFloor),
			)
		}
	}

	// 3. Trailing activation.
	if !pos.TrailingActive && e.risk.Trailing.Enabled && profitPct >= e.risk.Trailing.ActivationProfitPct {
		pos.TrailingActive = true
		e.alerts.TrailingEngaged(ctx, pos.Clone(), price)
		e.logger.InfoContext(ctx, "trailing stop engaged",
			slog.String("token", pos.TokenAddress),
			slog.Float64("price", price),
		)
	}

	// 4. Trailing floor update: follows the high, never loosens.
	if pos.TrailingActive {
		candidate := pos.HighestPriceSeen * (1 - e.risk.Trailing.DistancePct/100)
		if candidate > pos.CurrentStopLoss {
			old := pos.CurrentStopLoss
			pos.CurrentStopLoss = candidate
			e.alerts.StopRaised(ctx, pos.Clone(), old, candidate, false)
			e.logger.DebugContext(ctx, "trailing floor raised",
				slog.String("token", pos.TokenAddress),
				slog.Float64("old_floor", old),
				slog.Float64("new_floor", candidate),
			)
		}
	}

	// 5. Take-profit ladder, ascending by threshold.
	return e.runLadderLocked(ctx, pos, price, profitPct), nil
}

// stopReason distinguishes a trailing exit from a plain stop.
func stopReason(pos *domain.Position) domain.ExitReason {
	if pos.TrailingActive {
		return domain.ExitReasonTrailingStopLoss
	}
	return domain.ExitReasonStopLoss
}

// liquidateLocked sells 100% of the remaining stake at market. On success the
// position is removed; on failure it stays and the stop is retried on the
// next tick. Callers must hold e.mu.
func (e *Engine) liquidateLocked(ctx context.Context, pos *domain.Position, price float64, reason domain.ExitReason) bool {
	res, err := e.exec.SellPercentage(ctx, pos.PositionID, 100)
	if err != nil || !res.Success {
		e.recordFailureLocked(ctx, pos, reason, err, res.Message)
		return false
	}

	e.failures[pos.TokenAddress] = 0
	pos.TotalSoldPct = 100
	pos.RemainingAmount = 0
	e.closeOut(ctx, pos, price, reason)
	return true
}

// runLadderLocked scans the take-profit levels in ascending order and sells
// each crossed, not-yet-executed level. A level is marked executed only when
// the sell confirms, so transient failures retry on the next tick. Callers
// must hold e.mu.
func (e *Engine) runLadderLocked(ctx context.Context, pos *domain.Position, price, profitPct float64) bool {
	for idx, level := range e.risk.Levels {
		if pos.LevelExecuted(idx) || profitPct < level.ProfitPct {
			continue
		}

		res, err := e.exec.SellPercentage(ctx, pos.PositionID, level.SellPct)
		if err != nil || !res.Success {
			e.recordFailureLocked(ctx, pos, domain.ExitReasonTakeProfit, err, res.Message)
			// Leave the level unmarked; the next tick re-checks the
			// threshold before retrying.
			continue
		}

		e.failures[pos.TokenAddress] = 0
		pos.ExecutedLevels[idx] = true
		pos.TotalSoldPct += level.SellPct
		if pos.TotalSoldPct > 100 {
			pos.TotalSoldPct = 100
		}
		pos.RemainingAmount = pos.EntryAmount * (1 - pos.TotalSoldPct/100)
		if pos.RemainingAmount < 0 {
			pos.RemainingAmount = 0
		}

		e.alerts.PartialExit(ctx, pos.Clone(), level, price)
		e.publish(ctx, "partial_exit", map[string]any{
			"token":          pos.TokenAddress,
			"level":          level.Label,
			"sell_pct":       level.SellPct,
			"price":          price,
			"total_sold_pct": pos.TotalSoldPct,
		})
		e.logger.InfoContext(ctx, "take-profit level executed",
			slog.String("token", pos.TokenAddress),
			slog.String("level", level.Label),
			slog.Float64("sell_pct", level.SellPct),
			slog.Float64("total_sold_pct", pos.TotalSoldPct),
		)

		if pos.TotalSoldPct >= e.risk.FullExitPct-domain.FullExitTolerance {
			e.closeOut(ctx, pos, price, domain.ExitReasonTakeProfit)
			return true
		}
	}
	return false
}

// recordFailureLocked counts a failed sell and escalates to an operator
// alert once the consecutive-failure threshold for the token is reached.
// Callers must hold e.mu.
func (e *Engine) recordFailureLocked(ctx context.Context, pos *domain.Position, reason domain.ExitReason, err error, message string) {
	e.failures[pos.TokenAddress]++
	count := e.failures[pos.TokenAddress]

	detail := message
	if err != nil {
		detail = err.Error()
	}
	e.logger.WarnContext(ctx, "sell attempt failed",
		slog.String("token", pos.TokenAddress),
		slog.String("reason", string(reason)),
		slog.Int("consecutive_failures", count),
		slog.String("detail", detail),
	)

	if count >= failureAlertThreshold {
		e.alerts.Alert(ctx, "Sell failures",
			fmt.Sprintf("%s: %d consecutive failed %s sells (%s)", pos.Symbol, count, reason, detail))
		// Restart the count so a token that keeps failing keeps
		// escalating instead of alerting once ever.
		e.failures[pos.TokenAddress] = 0
	}
}

// LiquidateAll force-sells every open position regardless of its risk state.
// Individual failures are collected and returned; the sweep never aborts
// early. Positions whose sell confirms are removed immediately.
func (e *Engine) LiquidateAll(ctx context.Context, lastPrice func(token string) float64) []error {
	var errs []error
	for _, token := range e.Tokens() {
		e.mu.Lock()
		pos, ok := e.positions[token]
		if !ok {
			// Already closed by a concurrent tick; nothing to do.
			e.mu.Unlock()
			continue
		}

		res, err := e.exec.SellPercentage(ctx, pos.PositionID, 100)
		if err != nil || !res.Success {
			e.mu.Unlock()
			detail := res.Message
			if err != nil {
				detail = err.Error()
			}
			errs = append(errs, fmt.Errorf("engine: liquidate %s: %s", token, detail))
			continue
		}

		price := pos.EntryPrice
		if lastPrice != nil {
			if p := lastPrice(token); p > 0 {
				price = p
			}
		}
		pos.TotalSoldPct = 100
		pos.RemainingAmount = 0
		e.closeOut(ctx, pos, price, domain.ExitReasonEmergencyStop)
		e.mu.Unlock()
	}
	return errs
}

// encodeEvent serializes a bus event payload. Marshal errors cannot occur for
// the flat maps used here.
func encodeEvent(event string, detail map[string]any) []byte {
	body := make(map[string]any, len(detail)+1)
	body["event"] = event
	for k, v := range detail {
		body[k] = v
	}
	payload, _ := json.Marshal(body)
	return payload
}
