package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// PositionBook is the slice of the risk engine the coordinator needs: it
// registers confirmed buys and liquidates everything on an emergency stop.
type PositionBook interface {
	Register(ctx context.Context, tokenAddress, symbol, positionID string, entryPrice, entryAmount float64) (domain.Position, error)
	LiquidateAll(ctx context.Context, lastPrice func(token string) float64) []error
}

// Affordability answers whether the next buy can be funded and invalidates
// the balance cache after a fill changes the wallet.
type Affordability interface {
	CanAfford(ctx context.Context) domain.AffordCheck
	Invalidate()
}

// Notifier delivers coordinator outcomes to the operator.
type Notifier interface {
	TradeOpened(ctx context.Context, pos domain.Position, amount float64)
	Alert(ctx context.Context, title, message string)
}

// maxQueueDepth bounds how many trade requests may wait behind the in-flight
// submission. Requests beyond the bound are dropped, newest first.
const maxQueueDepth = 5

// Coordinator serializes buy submissions to one in-flight operation
// process-wide. Excess requests wait in a bounded FIFO queue and are drained
// one at a time as submissions finish. Sell instructions issued by the risk
// engine do not pass through here; only buys are single-flight.
type Coordinator struct {
	trader   domain.TradeExecutor
	prices   domain.PriceSource
	screener domain.Screener // optional; nil skips the screening gate
	balance  Affordability
	book     PositionBook
	notify   Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight bool
	queue    []domain.MintSignal
}

func NewCoordinator(
	trader domain.TradeExecutor,
	prices domain.PriceSource,
	screener domain.Screener,
	balance Affordability,
	book PositionBook,
	notify Notifier,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		trader:   trader,
		prices:   prices,
		screener: screener,
		balance:  balance,
		book:     book,
		notify:   notify,
		logger:   logger.With(slog.String("component", "coordinator")),
	}
}

// ExecuteTrade submits a buy for the signalled token, or queues the request
// when a submission is already in flight. It returns immediately with a
// queued or dropped outcome in that case; the queued request is submitted
// asynchronously once the in-flight slot frees up.
func (c *Coordinator) ExecuteTrade(ctx context.Context, sig domain.MintSignal) domain.TradeOutcome {
	c.mu.Lock()
	if c.inFlight {
		if len(c.queue) >= maxQueueDepth {
			c.mu.Unlock()
			c.logger.Warn("trade request dropped, queue full",
				slog.String("token", sig.TokenAddress))
			return domain.TradeOutcome{
				Status: domain.TradeStatusDropped,
				Reason: fmt.Sprintf("submission in flight and queue at capacity (%d)", maxQueueDepth),
			}
		}
		c.queue = append(c.queue, sig)
		depth := len(c.queue)
		c.mu.Unlock()
		c.logger.Info("trade request queued",
			slog.String("token", sig.TokenAddress), slog.Int("depth", depth))
		return domain.TradeOutcome{
			Status: domain.TradeStatusQueued,
			Reason: fmt.Sprintf("submission in flight, queued at depth %d", depth),
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	return c.submit(ctx, sig)
}

// submit runs the decision gate and the buy for one request. The in-flight
// flag is always released afterwards, even on panic, and at most one queued
// request is drained.
func (c *Coordinator) submit(ctx context.Context, sig domain.MintSignal) domain.TradeOutcome {
	defer c.finish(ctx)

	decision := c.CanTrade(ctx, sig.TokenAddress)
	if !decision.CanTrade {
		c.logger.Info("trade rejected",
			slog.String("token", sig.TokenAddress), slog.String("reason", decision.Reason))
		return domain.TradeOutcome{Status: domain.TradeStatusRejected, Reason: decision.Reason}
	}

	if c.screener != nil {
		verdict, err := c.screener.Check(ctx, sig.TokenAddress)
		if err != nil {
			c.logger.Warn("screening unavailable, rejecting",
				slog.String("token", sig.TokenAddress), slog.String("error", err.Error()))
			return domain.TradeOutcome{Status: domain.TradeStatusRejected, Reason: "screening unavailable"}
		}
		if !verdict.Safe {
			c.logger.Info("token failed screening",
				slog.String("token", sig.TokenAddress), slog.String("reason", verdict.Reason))
			return domain.TradeOutcome{Status: domain.TradeStatusRejected, Reason: verdict.Reason}
		}
	}

	res, err := c.trader.Buy(ctx, sig.TokenAddress, decision.Amount)
	if err != nil {
		c.logger.Warn("buy submission failed",
			slog.String("token", sig.TokenAddress), slog.String("error", err.Error()))
		return domain.TradeOutcome{Status: domain.TradeStatusFailed, Reason: err.Error()}
	}
	if !res.Success {
		c.logger.Warn("buy not filled",
			slog.String("token", sig.TokenAddress), slog.String("message", res.Message))
		return domain.TradeOutcome{Status: domain.TradeStatusFailed, Reason: res.Message}
	}

	c.balance.Invalidate()
	pos, err := c.book.Register(ctx, sig.TokenAddress, sig.Symbol, res.PositionID, res.FillPrice, decision.Amount)
	if err != nil {
		// The buy went through but the position cannot be tracked. This
		// needs an operator, not a silent log line.
		c.logger.Error("buy filled but position not registered",
			slog.String("token", sig.TokenAddress), slog.String("error", err.Error()))
		c.notify.Alert(ctx, "untracked position",
			fmt.Sprintf("buy filled for %s (position %s) but registration failed: %v",
				sig.TokenAddress, res.PositionID, err))
		return domain.TradeOutcome{Status: domain.TradeStatusFailed, Reason: err.Error()}
	}

	c.logger.Info("trade opened",
		slog.String("token", sig.TokenAddress),
		slog.String("position_id", res.PositionID),
		slog.Float64("amount", decision.Amount),
		slog.Float64("fill_price", res.FillPrice))
	c.notify.TradeOpened(ctx, pos, decision.Amount)
	return domain.TradeOutcome{Status: domain.TradeStatusExecuted, Amount: decision.Amount}
}

// finish releases the in-flight slot and hands it straight to the oldest
// queued request, if any, which then runs without blocking the caller.
func (c *Coordinator) finish(ctx context.Context) {
	c.mu.Lock()
	c.inFlight = false
	var next *domain.MintSignal
	if len(c.queue) > 0 {
		sig := c.queue[0]
		c.queue = c.queue[1:]
		c.inFlight = true
		next = &sig
	}
	c.mu.Unlock()

	if next == nil {
		return
	}
	// The drained request outlives the caller's request scope but should
	// still die with the process.
	drainCtx := context.WithoutCancel(ctx)
	go func() {
		out := c.submit(drainCtx, *next)
		c.logger.Info("queued trade drained",
			slog.String("token", next.TokenAddress),
			slog.String("status", string(out.Status)))
	}()
}

// CanTrade is the pure pre-trade check: token shape and affordability from
// the cached balance. It performs no screening and submits nothing.
func (c *Coordinator) CanTrade(ctx context.Context, tokenAddress string) domain.TradeDecision {
	if !validTokenAddress(tokenAddress) {
		return domain.TradeDecision{Reason: "malformed token address"}
	}
	check := c.balance.CanAfford(ctx)
	if !check.OK {
		return domain.TradeDecision{Reason: check.Reason}
	}
	if check.Amount <= 0 {
		return domain.TradeDecision{Reason: "computed buy size is not positive"}
	}
	return domain.TradeDecision{CanTrade: true, Amount: check.Amount}
}

// EmergencyStop clears the queue and the in-flight flag, then liquidates
// every open position. Individual failures are collected and reported in
// aggregate; the sweep never aborts early.
func (c *Coordinator) EmergencyStop(ctx context.Context) []error {
	c.mu.Lock()
	dropped := len(c.queue)
	c.queue = nil
	c.inFlight = false
	c.mu.Unlock()

	c.logger.Warn("emergency stop", slog.Int("queue_dropped", dropped))
	errs := c.book.LiquidateAll(ctx, func(token string) float64 {
		price, err := c.prices.Price(ctx, token)
		if err != nil {
			return 0
		}
		return price
	})
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		c.notify.Alert(ctx, "emergency stop incomplete",
			fmt.Sprintf("%d position(s) failed to liquidate: %s", len(errs), strings.Join(msgs, "; ")))
	} else {
		c.notify.Alert(ctx, "emergency stop complete", "all open positions liquidated")
	}
	return errs
}

// QueueDepth reports how many requests are waiting behind the in-flight one.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// InFlight reports whether a submission is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// validTokenAddress checks the base58 shape of a mint address: 32 to 44
// characters drawn from the Bitcoin base58 alphabet.
func validTokenAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	for _, r := range addr {
		switch {
		case r >= '1' && r <= '9':
		case r >= 'A' && r <= 'H':
		case r >= 'J' && r <= 'N':
		case r >= 'P' && r <= 'Z':
		case r >= 'a' && r <= 'k':
		case r >= 'm' && r <= 'z':
		default:
			return false
		}
	}
	return true
}
