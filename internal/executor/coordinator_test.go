package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

type buyCall struct {
	token  string
	amount float64
}

type fakeTrader struct {
	mu    sync.Mutex
	buys  []buyCall
	block chan struct{} // when set, Buy blocks until closed
	fail  bool
	err   error
}

func (f *fakeTrader) Buy(_ context.Context, token string, amount float64) (domain.BuyResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, buyCall{token: token, amount: amount})
	if f.err != nil {
		return domain.BuyResult{}, f.err
	}
	if f.fail {
		return domain.BuyResult{Success: false, Message: "slippage exceeded"}, nil
	}
	return domain.BuyResult{Success: true, PositionID: "pos-" + token, FillPrice: 1.0}, nil
}

func (f *fakeTrader) SellPercentage(context.Context, string, float64) (domain.SellResult, error) {
	return domain.SellResult{Success: true}, nil
}

func (f *fakeTrader) ListOpenPositions(context.Context) ([]domain.OpenPosition, error) {
	return nil, nil
}

func (f *fakeTrader) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys)
}

type fakeBalance struct {
	check       domain.AffordCheck
	invalidated int
}

func (f *fakeBalance) CanAfford(context.Context) domain.AffordCheck { return f.check }
func (f *fakeBalance) Invalidate()                                  { f.invalidated++ }

type fakeBook struct {
	mu         sync.Mutex
	registered []string
	liquidated int
	sweepErrs  []error
}

func (f *fakeBook) Register(_ context.Context, token, symbol, positionID string, entryPrice, entryAmount float64) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, token)
	return domain.Position{TokenAddress: token, Symbol: symbol, PositionID: positionID,
		EntryPrice: entryPrice, EntryAmount: entryAmount}, nil
}

func (f *fakeBook) LiquidateAll(context.Context, func(string) float64) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liquidated++
	return f.sweepErrs
}

type fakeScreener struct {
	verdict domain.ScreenResult
	err     error
}

func (f *fakeScreener) Check(context.Context, string) (domain.ScreenResult, error) {
	return f.verdict, f.err
}

type fakeCoordNotify struct {
	mu     sync.Mutex
	opened int
	alerts []string
}

func (f *fakeCoordNotify) TradeOpened(context.Context, domain.Position, float64) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
}

func (f *fakeCoordNotify) Alert(_ context.Context, title, _ string) {
	f.mu.Lock()
	f.alerts = append(f.alerts, title)
	f.mu.Unlock()
}

type fixedPrice float64

func (p fixedPrice) Price(context.Context, string) (float64, error) { return float64(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testToken builds a distinct base58-shaped mint address per index.
func testToken(i int) string {
	return fmt.Sprintf("TokenMintAddress11111111111111111111111%d", i+1)
}

func newTestCoordinator(trader *fakeTrader, screener domain.Screener, balance *fakeBalance, book *fakeBook, notify *fakeCoordNotify) *Coordinator {
	return NewCoordinator(trader, fixedPrice(1.0), screener, balance, book, notify, testLogger())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

func TestExecuteTradeOpensPosition(t *testing.T) {
	trader := &fakeTrader{}
	balance := &fakeBalance{check: domain.AffordCheck{OK: true, Amount: 0.5}}
	book := &fakeBook{}
	notify := &fakeCoordNotify{}
	c := newTestCoordinator(trader, nil, balance, book, notify)

	out := c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(0), Symbol: "TT"})
	if out.Status != domain.TradeStatusExecuted {
		t.Fatalf("outcome got=%+v want executed", out)
	}
	if len(book.registered) != 1 || book.registered[0] != testToken(0) {
		t.Fatalf("position not registered: %v", book.registered)
	}
	if balance.invalidated != 1 {
		t.Fatalf("balance cache not invalidated after fill")
	}
	if notify.opened != 1 {
		t.Fatalf("trade-opened notification missing")
	}
	if c.InFlight() {
		t.Fatalf("in-flight flag not cleared")
	}
}

func TestRejectionsNeverSubmit(t *testing.T) {
	cases := []struct {
		name     string
		token    string
		balance  domain.AffordCheck
		screener domain.Screener
	}{
		{"malformed token", "not-base58!", domain.AffordCheck{OK: true, Amount: 0.5}, nil},
		{"too short", "abc", domain.AffordCheck{OK: true, Amount: 0.5}, nil},
		{"unaffordable", testToken(0), domain.AffordCheck{Reason: "balance 0.9 is at or below the 1.0 reserve"}, nil},
		{"failed screening", testToken(0), domain.AffordCheck{OK: true, Amount: 0.5},
			&fakeScreener{verdict: domain.ScreenResult{Safe: false, Reason: "creator holds 90%"}}},
		{"screening error", testToken(0), domain.AffordCheck{OK: true, Amount: 0.5},
			&fakeScreener{err: errors.New("timeout")}},
	}
	for _, tc := range cases {
		trader := &fakeTrader{}
		c := newTestCoordinator(trader, tc.screener, &fakeBalance{check: tc.balance}, &fakeBook{}, &fakeCoordNotify{})
		out := c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: tc.token})
		if out.Status != domain.TradeStatusRejected {
			t.Fatalf("%s: outcome got=%+v want rejected", tc.name, out)
		}
		if out.Reason == "" {
			t.Fatalf("%s: rejection carries no reason", tc.name)
		}
		if trader.buyCount() != 0 {
			t.Fatalf("%s: rejected request was submitted", tc.name)
		}
	}
}

func TestFailedBuyIsNotRegistered(t *testing.T) {
	trader := &fakeTrader{fail: true}
	book := &fakeBook{}
	c := newTestCoordinator(trader, nil, &fakeBalance{check: domain.AffordCheck{OK: true, Amount: 0.5}}, book, &fakeCoordNotify{})

	out := c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(0)})
	if out.Status != domain.TradeStatusFailed {
		t.Fatalf("outcome got=%+v want failed", out)
	}
	if len(book.registered) != 0 {
		t.Fatalf("failed buy must not register a position")
	}
	if c.InFlight() {
		t.Fatalf("in-flight flag not cleared after failure")
	}
}

func TestBusyRequestsQueueUpToCapacity(t *testing.T) {
	block := make(chan struct{})
	trader := &fakeTrader{block: block}
	c := newTestCoordinator(trader, nil, &fakeBalance{check: domain.AffordCheck{OK: true, Amount: 0.5}}, &fakeBook{}, &fakeCoordNotify{})

	done := make(chan domain.TradeOutcome, 1)
	go func() {
		done <- c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(0)})
	}()
	waitFor(t, c.InFlight, "first submission to start")

	// The next five queue; the sixth is dropped.
	for i := 1; i <= maxQueueDepth; i++ {
		out := c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(i)})
		if out.Status != domain.TradeStatusQueued {
			t.Fatalf("request %d got=%+v want queued", i, out)
		}
	}
	out := c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(6)})
	if out.Status != domain.TradeStatusDropped {
		t.Fatalf("overflow request got=%+v want dropped", out)
	}
	if c.QueueDepth() != maxQueueDepth {
		t.Fatalf("queue depth got=%d want=%d", c.QueueDepth(), maxQueueDepth)
	}

	// Unblock: the first submission finishes and the queue drains one at a
	// time until every queued request has been submitted.
	close(block)
	if first := <-done; first.Status != domain.TradeStatusExecuted {
		t.Fatalf("first submission got=%+v want executed", first)
	}
	waitFor(t, func() bool { return trader.buyCount() == 1+maxQueueDepth }, "queue to drain")
	waitFor(t, func() bool { return !c.InFlight() && c.QueueDepth() == 0 }, "coordinator to go idle")
}

func TestEmergencyStopClearsQueueAndSweeps(t *testing.T) {
	block := make(chan struct{})
	trader := &fakeTrader{block: block}
	book := &fakeBook{sweepErrs: []error{errors.New("sell rejected for mintX")}}
	notify := &fakeCoordNotify{}
	c := newTestCoordinator(trader, nil, &fakeBalance{check: domain.AffordCheck{OK: true, Amount: 0.5}}, book, notify)

	go c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(0)})
	waitFor(t, c.InFlight, "submission to start")
	c.ExecuteTrade(context.Background(), domain.MintSignal{TokenAddress: testToken(1)})

	errs := c.EmergencyStop(context.Background())
	if len(errs) != 1 {
		t.Fatalf("sweep errors got=%d want=1", len(errs))
	}
	if c.QueueDepth() != 0 {
		t.Fatalf("queue not cleared")
	}
	if book.liquidated != 1 {
		t.Fatalf("liquidation sweep not invoked")
	}
	if len(notify.alerts) != 1 {
		t.Fatalf("partial sweep must alert, got %v", notify.alerts)
	}
	close(block)
}
