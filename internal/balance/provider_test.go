package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

type fakeWallet struct {
	balance float64
	err     error
	calls   int
}

func (f *fakeWallet) WalletBalance(context.Context) (float64, error) {
	f.calls++
	return f.balance, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(cfg Config, wallet *fakeWallet) *Provider {
	return NewProvider(cfg, wallet, testLogger())
}

func TestSnapshotIsCachedWithinTTL(t *testing.T) {
	wallet := &fakeWallet{balance: 10}
	p := newTestProvider(Config{
		Reserve:     1,
		Mode:        domain.SizingModeFixed,
		FixedAmount: 0.5,
		CacheTTL:    time.Minute,
	}, wallet)

	first, err := p.GetSnapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if first.AvailableForTrading != 9 {
		t.Fatalf("available got=%v want=9", first.AvailableForTrading)
	}

	// A second read within the TTL must not hit the wallet.
	wallet.balance = 0
	second, err := p.GetSnapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if wallet.calls != 1 {
		t.Fatalf("wallet calls got=%d want=1", wallet.calls)
	}
	if second.TotalBalance != first.TotalBalance {
		t.Fatalf("cached snapshot changed: %+v vs %+v", second, first)
	}

	// forceRefresh bypasses the cache.
	if _, err := p.GetSnapshot(context.Background(), true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if wallet.calls != 2 {
		t.Fatalf("forced refresh did not hit the wallet")
	}
}

func TestStaleSnapshotReturnedOnFetchError(t *testing.T) {
	wallet := &fakeWallet{balance: 10}
	p := newTestProvider(Config{Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5}, wallet)

	if _, err := p.GetSnapshot(context.Background(), false); err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	wallet.err = errors.New("rpc down")
	snap, err := p.GetSnapshot(context.Background(), true)
	if err == nil {
		t.Fatalf("expected an error for the failed refresh")
	}
	if snap.TotalBalance != 10 {
		t.Fatalf("stale snapshot lost: %+v", snap)
	}
}

func TestFixedSizingClampsToAvailable(t *testing.T) {
	wallet := &fakeWallet{balance: 1.2}
	p := newTestProvider(Config{Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5}, wallet)

	snap, err := p.GetSnapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if diff := snap.NextBuyAmount - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("next buy got=%v want=0.2", snap.NextBuyAmount)
	}
}

func TestPercentageSizingClamps(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		want    float64
	}{
		{"within bounds", 11, 1.0},     // 10 available, 10% = 1.0
		{"below minimum", 3, 0.5},      // 2 available, 10% = 0.2, min 0.5
		{"above maximum", 101, 2.0},    // 100 available, 10% = 10, max 2.0
		{"capped by available", 1.3, 0.3}, // min 0.5 exceeds the 0.3 available
	}
	for _, tc := range cases {
		wallet := &fakeWallet{balance: tc.balance}
		p := newTestProvider(Config{
			Reserve:      1,
			Mode:         domain.SizingModePercentage,
			Percentage:   10,
			MinTradeSize: 0.5,
			MaxTradeSize: 2.0,
		}, wallet)
		snap, err := p.GetSnapshot(context.Background(), false)
		if err != nil {
			t.Fatalf("%s: get snapshot: %v", tc.name, err)
		}
		if diff := snap.NextBuyAmount - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: next buy got=%v want=%v", tc.name, snap.NextBuyAmount, tc.want)
		}
	}
}

func TestCanAffordReasons(t *testing.T) {
	// No available balance.
	wallet := &fakeWallet{balance: 1}
	p := newTestProvider(Config{Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5}, wallet)
	check := p.CanAfford(context.Background())
	if check.OK || check.Reason == "" {
		t.Fatalf("zero available must fail with a reason, got %+v", check)
	}

	// Computed size below the minimum.
	wallet = &fakeWallet{balance: 1.1}
	p = newTestProvider(Config{
		Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5, MinTradeSize: 0.25,
	}, wallet)
	check = p.CanAfford(context.Background())
	if check.OK {
		t.Fatalf("size below minimum must fail, got %+v", check)
	}

	// Affordable trade reports the size.
	wallet = &fakeWallet{balance: 10}
	p = newTestProvider(Config{
		Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5, MinTradeSize: 0.25,
	}, wallet)
	check = p.CanAfford(context.Background())
	if !check.OK || check.Amount != 0.5 {
		t.Fatalf("affordable check got %+v", check)
	}
}

func TestHealthClassification(t *testing.T) {
	wallet := &fakeWallet{}
	p := newTestProvider(Config{Reserve: 1, Mode: domain.SizingModeFixed, FixedAmount: 0.5}, wallet)

	cases := []struct {
		name string
		snap domain.BalanceSnapshot
		want domain.BalanceHealth
	}{
		{"critical at twice reserve", domain.BalanceSnapshot{TotalBalance: 2, AvailableForTrading: 1, NextBuyAmount: 0.5}, domain.BalanceCritical},
		{"warning at five times reserve", domain.BalanceSnapshot{TotalBalance: 5, AvailableForTrading: 4, NextBuyAmount: 0.5}, domain.BalanceWarning},
		{"warning with few trades left", domain.BalanceSnapshot{TotalBalance: 20, AvailableForTrading: 1, NextBuyAmount: 0.5}, domain.BalanceWarning},
		{"healthy", domain.BalanceSnapshot{TotalBalance: 20, AvailableForTrading: 19, NextBuyAmount: 0.5}, domain.BalanceHealthy},
	}
	for _, tc := range cases {
		if got := p.Health(tc.snap); got != tc.want {
			t.Fatalf("%s: health got=%s want=%s", tc.name, got, tc.want)
		}
	}
}
