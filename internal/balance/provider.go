package balance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Config controls position sizing and the snapshot cache.
type Config struct {
	// Reserve is held back from every sizing calculation, covering fees
	// and a safety margin.
	Reserve float64

	Mode        domain.SizingMode
	FixedAmount float64 // buy size in fixed mode
	Percentage  float64 // percent of available balance in percentage mode

	MinTradeSize float64
	MaxTradeSize float64

	// CacheTTL bounds how often the wallet is queried. Zero falls back to
	// a short default.
	CacheTTL time.Duration
}

const defaultCacheTTL = 5 * time.Second

// Provider computes balance snapshots from a wallet source and memoizes them
// for a short TTL. Readers never block on a refresh already satisfied by the
// cache; a refresh simply overwrites the previous snapshot.
type Provider struct {
	cfg    Config
	source domain.BalanceSource
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	snap   domain.BalanceSnapshot
	cached bool
}

func NewProvider(cfg Config, source domain.BalanceSource, logger *slog.Logger) *Provider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Provider{
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("component", "balance")),
		now:    time.Now,
	}
}

// GetSnapshot returns the cached snapshot when it is fresh enough, otherwise
// fetches the wallet balance and recomputes the whole snapshot. Cache hits are
// silent; refreshes are logged.
func (p *Provider) GetSnapshot(ctx context.Context, forceRefresh bool) (domain.BalanceSnapshot, error) {
	p.mu.RLock()
	if !forceRefresh && p.cached && p.now().Sub(p.snap.FetchedAt) < p.cfg.CacheTTL {
		snap := p.snap
		p.mu.RUnlock()
		return snap, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if !forceRefresh && p.cached && p.now().Sub(p.snap.FetchedAt) < p.cfg.CacheTTL {
		return p.snap, nil
	}

	total, err := p.source.WalletBalance(ctx)
	if err != nil {
		if p.cached {
			return p.snap, fmt.Errorf("balance: refresh failed, snapshot is stale: %w", err)
		}
		return domain.BalanceSnapshot{}, fmt.Errorf("balance: fetch wallet balance: %w", err)
	}

	available := math.Max(0, total-p.cfg.Reserve)
	snap := domain.BalanceSnapshot{
		TotalBalance:        total,
		Reserve:             p.cfg.Reserve,
		AvailableForTrading: available,
		NextBuyAmount:       p.nextBuyAmount(available),
		SizingMode:          p.cfg.Mode,
		FetchedAt:           p.now(),
	}
	p.snap = snap
	p.cached = true

	p.logger.Info("balance snapshot refreshed",
		slog.Float64("total", snap.TotalBalance),
		slog.Float64("available", snap.AvailableForTrading),
		slog.Float64("next_buy", snap.NextBuyAmount),
		slog.String("mode", string(snap.SizingMode)))
	return snap, nil
}

// Invalidate drops the cached snapshot so the next read hits the wallet.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = false
	p.mu.Unlock()
}

func (p *Provider) nextBuyAmount(available float64) float64 {
	var amount float64
	switch p.cfg.Mode {
	case domain.SizingModePercentage:
		amount = available * p.cfg.Percentage / 100
		if amount < p.cfg.MinTradeSize {
			amount = p.cfg.MinTradeSize
		}
		if p.cfg.MaxTradeSize > 0 && amount > p.cfg.MaxTradeSize {
			amount = p.cfg.MaxTradeSize
		}
		// The clamp may have pushed the amount past what is spendable.
		if amount > available {
			amount = available
		}
	default:
		amount = math.Min(p.cfg.FixedAmount, available)
	}
	return math.Max(0, amount)
}

// CanAfford reports whether the next buy can be funded right now, with a
// distinct reason for each way it cannot.
func (p *Provider) CanAfford(ctx context.Context) domain.AffordCheck {
	snap, err := p.GetSnapshot(ctx, false)
	if err != nil {
		return domain.AffordCheck{Reason: fmt.Sprintf("balance unavailable: %v", err)}
	}
	switch {
	case snap.AvailableForTrading <= 0:
		return domain.AffordCheck{Reason: fmt.Sprintf(
			"balance %.4f is at or below the %.4f reserve", snap.TotalBalance, snap.Reserve)}
	case snap.NextBuyAmount <= 0:
		return domain.AffordCheck{Reason: "computed buy size is zero"}
	case snap.NextBuyAmount < p.cfg.MinTradeSize:
		return domain.AffordCheck{Reason: fmt.Sprintf(
			"buy size %.4f is below the %.4f minimum", snap.NextBuyAmount, p.cfg.MinTradeSize)}
	}
	return domain.AffordCheck{OK: true, Amount: snap.NextBuyAmount}
}

// Health classifies how much runway a snapshot represents.
func (p *Provider) Health(snap domain.BalanceSnapshot) domain.BalanceHealth {
	if p.cfg.Reserve > 0 && snap.TotalBalance <= 2*p.cfg.Reserve {
		return domain.BalanceCritical
	}
	if p.cfg.Reserve > 0 && snap.TotalBalance <= 5*p.cfg.Reserve {
		return domain.BalanceWarning
	}
	if snap.NextBuyAmount > 0 && snap.AvailableForTrading/snap.NextBuyAmount < 3 {
		return domain.BalanceWarning
	}
	return domain.BalanceHealthy
}
