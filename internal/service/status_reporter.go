package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// PositionLister is the slice of the risk engine the reporter reads.
type PositionLister interface {
	List() []domain.Position
	Count() int
}

// CoordinatorStatus exposes the execution coordinator's queue state.
type CoordinatorStatus interface {
	InFlight() bool
	QueueDepth() int
}

// BalanceReader supplies the current snapshot and its health class.
type BalanceReader interface {
	GetSnapshot(ctx context.Context, forceRefresh bool) (domain.BalanceSnapshot, error)
	Health(snap domain.BalanceSnapshot) domain.BalanceHealth
}

// StatusSink receives the rendered report.
type StatusSink interface {
	Status(ctx context.Context, message string)
	Alert(ctx context.Context, title, message string)
}

const defaultReportInterval = 30 * time.Minute

// recentTradeLines caps how many just-closed trades the report lists.
const recentTradeLines = 3

// StatusReporter periodically aggregates the bot's operational state into one
// report: balance and its health, open positions with unrealized profit, the
// coordinator's queue, and realized PnL over the last day.
type StatusReporter struct {
	mode     string
	engine   PositionLister
	coord    CoordinatorStatus
	balance  BalanceReader
	trades   domain.TradeStore // optional; nil omits realized PnL and recent closes
	prices   domain.PriceCache // optional; nil omits unrealized profit
	sink     StatusSink
	interval time.Duration
	logger   *slog.Logger
}

func NewStatusReporter(
	mode string,
	engine PositionLister,
	coord CoordinatorStatus,
	balance BalanceReader,
	trades domain.TradeStore,
	prices domain.PriceCache,
	sink StatusSink,
	interval time.Duration,
	logger *slog.Logger,
) *StatusReporter {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	return &StatusReporter{
		mode:     mode,
		engine:   engine,
		coord:    coord,
		balance:  balance,
		trades:   trades,
		prices:   prices,
		sink:     sink,
		interval: interval,
		logger:   logger.With(slog.String("component", "status_reporter")),
	}
}

// Run reports on the configured interval until ctx is cancelled.
func (r *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report gathers one status snapshot, logs it, and delivers it to the sink.
// A critical balance additionally raises an alert.
func (r *StatusReporter) Report(ctx context.Context) domain.BotStatus {
	status := domain.BotStatus{
		Mode:          r.mode,
		Health:        domain.BalanceHealthy,
		OpenPositions: r.engine.Count(),
		InFlight:      r.coord.InFlight(),
		QueueDepth:    r.coord.QueueDepth(),
	}

	snap, err := r.balance.GetSnapshot(ctx, false)
	if err != nil {
		r.logger.Warn("status report without balance", slog.String("error", err.Error()))
	} else {
		status.TotalBalance = snap.TotalBalance
		status.Available = snap.AvailableForTrading
		status.NextBuy = snap.NextBuyAmount
		status.Health = r.balance.Health(snap)
	}

	if r.trades != nil {
		pnl, err := r.trades.SumPnL(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			r.logger.Warn("status report without pnl", slog.String("error", err.Error()))
		} else {
			status.PnL24h = pnl
		}
	}

	msg := r.render(ctx, status)
	r.logger.Info("status report",
		slog.String("health", string(status.Health)),
		slog.Float64("balance", status.TotalBalance),
		slog.Int("open_positions", status.OpenPositions),
		slog.Int("queue_depth", status.QueueDepth),
		slog.Float64("pnl_24h", status.PnL24h))
	r.sink.Status(ctx, msg)

	if status.Health == domain.BalanceCritical {
		r.sink.Alert(ctx, "balance critical",
			fmt.Sprintf("balance %.4f is within twice the reserve", status.TotalBalance))
	}
	return status
}

func (r *StatusReporter) render(ctx context.Context, status domain.BotStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", status.Mode)
	fmt.Fprintf(&b, "Balance: %.4f (%.4f available, next buy %.4f) [%s]\n",
		status.TotalBalance, status.Available, status.NextBuy, status.Health)
	fmt.Fprintf(&b, "Realized 24h PnL: %.4f\n", status.PnL24h)
	fmt.Fprintf(&b, "Queue: %d waiting, in flight: %v\n", status.QueueDepth, status.InFlight)

	if r.trades != nil {
		recent, err := r.trades.ListRecent(ctx, domain.ListOpts{Limit: recentTradeLines})
		if err != nil {
			r.logger.Warn("status report without recent trades", slog.String("error", err.Error()))
		}
		if len(recent) > 0 {
			fmt.Fprintf(&b, "Last closed:\n")
			for _, t := range recent {
				fmt.Fprintf(&b, "  %s: %+.4f (%+.1f%%) %s\n",
					t.Symbol, t.PnL, t.PnLPercent, t.Reason)
			}
		}
	}

	positions := r.engine.List()
	fmt.Fprintf(&b, "Open positions: %d", len(positions))
	if len(positions) == 0 {
		return b.String()
	}

	var cached map[string]float64
	if r.prices != nil {
		tokens := make([]string, 0, len(positions))
		for _, pos := range positions {
			tokens = append(tokens, pos.TokenAddress)
		}
		var err error
		cached, err = r.prices.GetPrices(ctx, tokens)
		if err != nil {
			r.logger.Warn("status report without cached prices", slog.String("error", err.Error()))
		}
	}

	for _, pos := range positions {
		name := pos.Symbol
		if name == "" {
			name = pos.TokenAddress
		}
		if price, ok := cached[pos.TokenAddress]; ok {
			fmt.Fprintf(&b, "\n  %s: %+.1f%% (sold %.1f%%)",
				name, pos.ProfitPercent(price), pos.TotalSoldPct)
		} else {
			fmt.Fprintf(&b, "\n  %s: sold %.1f%%", name, pos.TotalSoldPct)
		}
	}
	return b.String()
}
