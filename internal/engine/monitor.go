package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Monitor drives the engine on a fast interval: each firing re-prices every
// open position sequentially and feeds the price into Evaluate. A firing that
// would overlap a still-running one is skipped, so two ticks never mutate the
// same position concurrently.
type Monitor struct {
	engine   *Engine
	prices   domain.PriceSource
	cache    domain.PriceCache // optional; latest prices mirrored for readers
	interval time.Duration
	logger   *slog.Logger

	inTick atomic.Bool
}

// NewMonitor creates a Monitor. cache may be nil. A non-positive interval
// falls back to 5 seconds.
func NewMonitor(engine *Engine, prices domain.PriceSource, cache domain.PriceCache, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		engine:   engine,
		prices:   prices,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Run fires ticks until the context is cancelled. Firings while no position
// is open are no-ops.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("position monitor started", slog.Duration("interval", m.interval))
	defer m.logger.Info("position monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick evaluates every open position once. If a previous tick is still in
// progress the firing is skipped rather than run concurrently.
func (m *Monitor) Tick(ctx context.Context) {
	if m.engine.Count() == 0 {
		return
	}
	if !m.inTick.CompareAndSwap(false, true) {
		m.logger.Warn("tick still in progress, skipping firing")
		return
	}
	defer m.inTick.Store(false)

	for _, token := range m.engine.Tokens() {
		price, err := m.prices.Price(ctx, token)
		if err != nil {
			// A failed fetch skips the token this tick; the relevant
			// level or stop is simply re-checked on the next one.
			m.logger.WarnContext(ctx, "price fetch failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
			continue
		}

		if m.cache != nil {
			if cacheErr := m.cache.SetPrice(ctx, token, price, time.Now().UTC()); cacheErr != nil {
				m.logger.DebugContext(ctx, "price cache write failed",
					slog.String("token", token),
					slog.String("error", cacheErr.Error()),
				)
			}
		}

		if _, err := m.engine.Evaluate(ctx, token, price); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "evaluation failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}

		if ctx.Err() != nil {
			return
		}
	}
}
