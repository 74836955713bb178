package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Event type names used for notification filtering.
const (
	EventTradeOpened     = "trade_opened"
	EventTradeClosed     = "trade_closed"
	EventPartialExit     = "partial_exit"
	EventStopRaised      = "stop_raised"
	EventTrailingEngaged = "trailing_engaged"
	EventAlert           = "alert"
	EventStatus          = "status"
)

// TradeEvents renders position lifecycle events into operator-readable
// messages and hands them to the Notifier. The risk engine and the execution
// coordinator both deliver their notifications through this type.
type TradeEvents struct {
	notifier *Notifier
}

// NewTradeEvents wraps a Notifier with trade-event formatting.
func NewTradeEvents(notifier *Notifier) *TradeEvents {
	return &TradeEvents{notifier: notifier}
}

// TradeOpened announces a filled buy.
func (t *TradeEvents) TradeOpened(ctx context.Context, pos domain.Position, amount float64) {
	title := fmt.Sprintf("Opened %s", displayName(pos))
	msg := fmt.Sprintf("Bought %.4f at %.8f\nStop loss: %.8f",
		amount, pos.EntryPrice, pos.CurrentStopLoss)
	t.notifier.Notify(ctx, EventTradeOpened, title, msg)
}

// TradeClosed announces a fully exited position with its realized result.
func (t *TradeEvents) TradeClosed(ctx context.Context, rec domain.TradeRecord) {
	direction := "Profit"
	if rec.PnL < 0 {
		direction = "Loss"
	}
	title := fmt.Sprintf("Closed %s (%s)", rec.Symbol, rec.Reason)
	msg := fmt.Sprintf("Entry %.8f, exit %.8f\n%s: %.4f (%.2f%%)",
		rec.EntryPrice, rec.ExitPrice, direction, rec.PnL, rec.PnLPercent)
	t.notifier.Notify(ctx, EventTradeClosed, title, msg)
}

// PartialExit announces one take-profit level firing.
func (t *TradeEvents) PartialExit(ctx context.Context, pos domain.Position, level domain.TakeProfitLevel, price float64) {
	title := fmt.Sprintf("Take profit on %s", displayName(pos))
	msg := fmt.Sprintf("%s hit at %.8f (+%.1f%%): sold %.1f%%, %.1f%% total",
		level.Label, price, level.ProfitPct, level.SellPct, pos.TotalSoldPct)
	t.notifier.Notify(ctx, EventPartialExit, title, msg)
}

// StopRaised announces a floor move, either the one-time breakeven move or a
// trailing adjustment.
func (t *TradeEvents) StopRaised(ctx context.Context, pos domain.Position, oldFloor, newFloor float64, breakeven bool) {
	kind := "Trailing stop"
	if breakeven {
		kind = "Breakeven stop"
	}
	title := fmt.Sprintf("%s on %s", kind, displayName(pos))
	msg := fmt.Sprintf("Floor raised %.8f -> %.8f", oldFloor, newFloor)
	t.notifier.Notify(ctx, EventStopRaised, title, msg)
}

// TrailingEngaged announces trailing activation for a position.
func (t *TradeEvents) TrailingEngaged(ctx context.Context, pos domain.Position, price float64) {
	title := fmt.Sprintf("Trailing engaged on %s", displayName(pos))
	msg := fmt.Sprintf("Price %.8f (+%.1f%%), stop now follows the high",
		price, pos.ProfitPercent(price))
	t.notifier.Notify(ctx, EventTrailingEngaged, title, msg)
}

// Alert delivers an operator alert regardless of event filtering.
func (t *TradeEvents) Alert(ctx context.Context, title, message string) {
	t.notifier.NotifyAll(ctx, title, message)
}

// Status delivers a periodic status report.
func (t *TradeEvents) Status(ctx context.Context, message string) {
	t.notifier.Notify(ctx, EventStatus, "Bot status", message)
}

func displayName(pos domain.Position) string {
	if pos.Symbol != "" {
		return pos.Symbol
	}
	return shortAddress(pos.TokenAddress)
}

func shortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
