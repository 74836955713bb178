package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

type sellCall struct {
	positionID string
	pct        float64
}

// fakeSeller records sells and can be switched into failure mode.
type fakeSeller struct {
	mu    sync.Mutex
	calls []sellCall
	fail  bool
	err   error
}

func (f *fakeSeller) SellPercentage(_ context.Context, positionID string, pct float64) (domain.SellResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sellCall{positionID: positionID, pct: pct})
	if f.err != nil {
		return domain.SellResult{}, f.err
	}
	if f.fail {
		return domain.SellResult{Success: false, Message: "rpc timeout"}, nil
	}
	return domain.SellResult{Success: true, TxID: "tx"}, nil
}

func (f *fakeSeller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeAlerter counts typed notifications.
type fakeAlerter struct {
	mu              sync.Mutex
	partials        int
	closed          []domain.TradeRecord
	stopRaised      int
	trailingEngaged int
	alerts          []string
}

func (f *fakeAlerter) PartialExit(context.Context, domain.Position, domain.TakeProfitLevel, float64) {
	f.mu.Lock()
	f.partials++
	f.mu.Unlock()
}

func (f *fakeAlerter) TradeClosed(_ context.Context, rec domain.TradeRecord) {
	f.mu.Lock()
	f.closed = append(f.closed, rec)
	f.mu.Unlock()
}

func (f *fakeAlerter) StopRaised(context.Context, domain.Position, float64, float64, bool) {
	f.mu.Lock()
	f.stopRaised++
	f.mu.Unlock()
}

func (f *fakeAlerter) TrailingEngaged(context.Context, domain.Position, float64) {
	f.mu.Lock()
	f.trailingEngaged++
	f.mu.Unlock()
}

func (f *fakeAlerter) Alert(_ context.Context, title, _ string) {
	f.mu.Lock()
	f.alerts = append(f.alerts, title)
	f.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRisk() domain.RiskConfig {
	return domain.RiskConfig{
		InitialStopLossPct: 60,
		Breakeven:          domain.BreakevenConfig{Enabled: true, TriggerProfitPct: 25, OffsetPct: 8},
		Trailing:           domain.TrailingConfig{Enabled: true, ActivationProfitPct: 40, DistancePct: 25},
		Levels: []domain.TakeProfitLevel{
			{ProfitPct: 30, SellPct: 15, Label: "tp1"},
			{ProfitPct: 80, SellPct: 25, Label: "tp2"},
		},
		FullExitPct: 100,
	}
}

func newTestEngine(t *testing.T, risk domain.RiskConfig, seller *fakeSeller, alerts *fakeAlerter) *Engine {
	t.Helper()
	if err := risk.Validate(); err != nil {
		t.Fatalf("risk config invalid: %v", err)
	}
	return New(risk, seller, alerts, nil, nil, nil, testLogger())
}

func mustRegister(t *testing.T, e *Engine, token string, entryPrice, entryAmount float64) {
	t.Helper()
	if _, err := e.Register(context.Background(), token, "TEST", "pos-"+token, entryPrice, entryAmount); err != nil {
		t.Fatalf("register %s: %v", token, err)
	}
}

func TestRegisterSetsInitialFloor(t *testing.T) {
	e := newTestEngine(t, testRisk(), &fakeSeller{}, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 0.5)

	pos, ok := e.Get("mintA")
	if !ok {
		t.Fatalf("position not found after register")
	}
	if pos.CurrentStopLoss != 0.40 {
		t.Fatalf("initial floor got=%v want=0.40", pos.CurrentStopLoss)
	}
	if pos.RemainingAmount != 0.5 {
		t.Fatalf("remaining got=%v want=0.5", pos.RemainingAmount)
	}
	if _, err := e.Register(context.Background(), "mintA", "TEST", "pos2", 1.0, 0.5); err != domain.ErrAlreadyExists {
		t.Fatalf("duplicate register err got=%v want=ErrAlreadyExists", err)
	}
}

func TestStopLossLiquidatesAndRemoves(t *testing.T) {
	seller := &fakeSeller{}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, testRisk(), seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 1.0)

	closed, err := e.Evaluate(context.Background(), "mintA", 0.40)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("expected position to close at the floor")
	}
	if e.Count() != 0 {
		t.Fatalf("position should be removed, count=%d", e.Count())
	}
	if len(seller.calls) != 1 || seller.calls[0].pct != 100 {
		t.Fatalf("expected one full sell, got %+v", seller.calls)
	}
	if len(alerts.closed) != 1 || alerts.closed[0].Reason != domain.ExitReasonStopLoss {
		t.Fatalf("expected Stop Loss close record, got %+v", alerts.closed)
	}
}

func TestLadderLevelFiresExactlyOnce(t *testing.T) {
	seller := &fakeSeller{}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, testRisk(), seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 2.0)

	// 30% profit crosses the first level: sell 15% of the original amount.
	if _, err := e.Evaluate(context.Background(), "mintA", 1.30); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pos, _ := e.Get("mintA")
	if !pos.LevelExecuted(0) || pos.LevelExecuted(1) {
		t.Fatalf("executed levels got=%v want={0}", pos.ExecutedLevels)
	}
	if pos.TotalSoldPct != 15 {
		t.Fatalf("total sold got=%v want=15", pos.TotalSoldPct)
	}
	if got, want := pos.RemainingAmount, 0.85*2.0; got != want {
		t.Fatalf("remaining got=%v want=%v", got, want)
	}

	// Oscillate below and back above the threshold: the level must not
	// re-fire.
	if _, err := e.Evaluate(context.Background(), "mintA", 1.10); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := e.Evaluate(context.Background(), "mintA", 1.35); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if seller.callCount() != 1 {
		t.Fatalf("level re-fired: %d sells", seller.callCount())
	}
	if alerts.partials != 1 {
		t.Fatalf("partial exit notified %d times, want 1", alerts.partials)
	}
}

func TestBreakevenBoundary(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, domain.RiskConfig{
		InitialStopLossPct: 60,
		Breakeven:          domain.BreakevenConfig{Enabled: true, TriggerProfitPct: 25, OffsetPct: 8},
		FullExitPct:        100,
	}, seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)

	// 25% profit triggers the breakeven move to 1.08.
	if _, err := e.Evaluate(context.Background(), "mintA", 1.25); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pos, _ := e.Get("mintA")
	if !pos.BreakevenMoved {
		t.Fatalf("breakeven flag not set")
	}
	if pos.CurrentStopLoss != 1.08 {
		t.Fatalf("floor got=%v want=1.08", pos.CurrentStopLoss)
	}

	// Exactly at the floor triggers the stop.
	closed, err := e.Evaluate(context.Background(), "mintA", 1.08)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("price at the floor must trigger the stop")
	}

	// Just below the floor also triggers.
	mustRegister(t, e, "mintB", 1.00, 1.0)
	if _, err := e.Evaluate(context.Background(), "mintB", 1.25); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	closed, err = e.Evaluate(context.Background(), "mintB", 1.079)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("price below the floor must trigger the stop")
	}

	// Just above the floor must not.
	mustRegister(t, e, "mintC", 1.00, 1.0)
	if _, err := e.Evaluate(context.Background(), "mintC", 1.25); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	closed, err = e.Evaluate(context.Background(), "mintC", 1.0801)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if closed {
		t.Fatalf("price above the floor must not trigger the stop")
	}
}

func TestTrailingStopFollowsHigh(t *testing.T) {
	seller := &fakeSeller{}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, domain.RiskConfig{
		InitialStopLossPct: 60,
		Trailing:           domain.TrailingConfig{Enabled: true, ActivationProfitPct: 40, DistancePct: 25},
		FullExitPct:        100,
	}, seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 1.0)

	// High of 2.00 sets a trailing floor of 1.50.
	if _, err := e.Evaluate(context.Background(), "mintA", 2.00); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pos, _ := e.Get("mintA")
	if !pos.TrailingActive {
		t.Fatalf("trailing not engaged at 100%% profit")
	}
	if pos.CurrentStopLoss != 1.50 {
		t.Fatalf("trailing floor got=%v want=1.50", pos.CurrentStopLoss)
	}
	if alerts.trailingEngaged != 1 {
		t.Fatalf("trailing engage notified %d times, want 1", alerts.trailingEngaged)
	}

	// A fall to 1.00 stops out at the trailing floor, not the initial 0.40.
	closed, err := e.Evaluate(context.Background(), "mintA", 1.00)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("trailing stop did not trigger")
	}
	if len(alerts.closed) != 1 || alerts.closed[0].Reason != domain.ExitReasonTrailingStopLoss {
		t.Fatalf("expected Trailing Stop Loss close, got %+v", alerts.closed)
	}
}

func TestStopLossShortCircuitsLadder(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, testRisk(), seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)

	// Raise the floor to 1.50 via trailing, then drop to 1.40: the price
	// still clears the 30% ladder level, but the stop runs first and must
	// be the only sell.
	if _, err := e.Evaluate(context.Background(), "mintA", 2.00); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	sellsAfterRise := seller.callCount() // ladder levels fired on the way up
	closed, err := e.Evaluate(context.Background(), "mintA", 1.40)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("stop did not trigger at 1.40 under a 1.50 floor")
	}
	calls := seller.calls[sellsAfterRise:]
	if len(calls) != 1 || calls[0].pct != 100 {
		t.Fatalf("stop must short-circuit the ladder, extra calls: %+v", calls)
	}
}

func TestFloorAndHighAreMonotonic(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, testRisk(), seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)

	prices := []float64{1.10, 1.26, 1.20, 1.45, 1.42, 1.90, 1.60, 1.95}
	lastFloor, lastHigh := 0.0, 0.0
	for _, price := range prices {
		closed, err := e.Evaluate(context.Background(), "mintA", price)
		if err != nil {
			t.Fatalf("evaluate %v: %v", price, err)
		}
		if closed {
			t.Fatalf("position unexpectedly closed at %v", price)
		}
		pos, _ := e.Get("mintA")
		if pos.CurrentStopLoss < lastFloor {
			t.Fatalf("floor decreased: %v -> %v", lastFloor, pos.CurrentStopLoss)
		}
		if pos.HighestPriceSeen < lastHigh {
			t.Fatalf("high decreased: %v -> %v", lastHigh, pos.HighestPriceSeen)
		}
		if pos.TotalSoldPct > 100 {
			t.Fatalf("total sold exceeds 100: %v", pos.TotalSoldPct)
		}
		lastFloor, lastHigh = pos.CurrentStopLoss, pos.HighestPriceSeen
	}
}

func TestSellFailureRetriesAndEscalates(t *testing.T) {
	seller := &fakeSeller{fail: true}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, testRisk(), seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 1.0)

	// Three failed ladder attempts: level stays unmarked, one alert fires.
	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate(context.Background(), "mintA", 1.30); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	pos, _ := e.Get("mintA")
	if pos.LevelExecuted(0) {
		t.Fatalf("failed level must not be marked executed")
	}
	if pos.TotalSoldPct != 0 {
		t.Fatalf("total sold advanced on failure: %v", pos.TotalSoldPct)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("escalation alerts got=%d want=1", len(alerts.alerts))
	}

	// Escalation restarts the count: three more failures raise a
	// second alert instead of staying silent forever.
	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate(context.Background(), "mintA", 1.30); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if len(alerts.alerts) != 2 {
		t.Fatalf("escalation alerts got=%d want=2", len(alerts.alerts))
	}

	// A later success resets the counter and finally marks the level.
	seller.fail = false
	if _, err := e.Evaluate(context.Background(), "mintA", 1.30); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pos, _ = e.Get("mintA")
	if !pos.LevelExecuted(0) {
		t.Fatalf("level not executed after recovery")
	}
}

func TestFullExitRemovesPosition(t *testing.T) {
	seller := &fakeSeller{}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, domain.RiskConfig{
		InitialStopLossPct: 60,
		Levels: []domain.TakeProfitLevel{
			{ProfitPct: 20, SellPct: 50, Label: "half"},
			{ProfitPct: 50, SellPct: 50, Label: "rest"},
		},
		FullExitPct: 100,
	}, seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 1.0)

	closed, err := e.Evaluate(context.Background(), "mintA", 1.60)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !closed {
		t.Fatalf("both levels crossed, position should fully exit")
	}
	if e.Count() != 0 {
		t.Fatalf("position not removed after full exit")
	}
	if len(alerts.closed) != 1 || alerts.closed[0].SoldPct != 100 {
		t.Fatalf("close record got=%+v", alerts.closed)
	}
}

func TestLiquidateAllCollectsFailures(t *testing.T) {
	seller := &fakeSeller{}
	alerts := &fakeAlerter{}
	e := newTestEngine(t, testRisk(), seller, alerts)
	mustRegister(t, e, "mintA", 1.00, 1.0)
	mustRegister(t, e, "mintB", 2.00, 1.0)

	// Fail every sell first: the sweep must visit both positions, report
	// one error each, and remove nothing.
	seller.fail = true
	errs := e.LiquidateAll(context.Background(), nil)
	if len(errs) != 2 {
		t.Fatalf("sweep errors got=%d want=2", len(errs))
	}
	if e.Count() != 2 {
		t.Fatalf("failed sweep must keep positions, count=%d", e.Count())
	}

	// Now let sells succeed: everything liquidates with the sweep reason.
	seller.fail = false
	errs = e.LiquidateAll(context.Background(), func(string) float64 { return 1.50 })
	if len(errs) != 0 {
		t.Fatalf("sweep errors got=%v want none", errs)
	}
	if e.Count() != 0 {
		t.Fatalf("positions left after sweep: %d", e.Count())
	}
	for _, rec := range alerts.closed {
		if rec.Reason != domain.ExitReasonEmergencyStop {
			t.Fatalf("sweep close reason got=%s", rec.Reason)
		}
	}
}
