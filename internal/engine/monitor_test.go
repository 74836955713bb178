package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	block  chan struct{} // when set, Price blocks until closed
}

func (f *fakePrices) Price(_ context.Context, token string) (float64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[token]; ok {
		return 0, err
	}
	return f.prices[token], nil
}

func TestTickEvaluatesEveryPosition(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, testRisk(), seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)
	mustRegister(t, e, "mintB", 1.00, 1.0)

	prices := &fakePrices{prices: map[string]float64{"mintA": 0.30, "mintB": 1.10}}
	m := NewMonitor(e, prices, nil, 0, testLogger())
	m.Tick(context.Background())

	// mintA stopped out, mintB still tracked with an updated high.
	if _, ok := e.Get("mintA"); ok {
		t.Fatalf("mintA should have stopped out")
	}
	pos, ok := e.Get("mintB")
	if !ok {
		t.Fatalf("mintB missing after tick")
	}
	if pos.HighestPriceSeen != 1.10 {
		t.Fatalf("high got=%v want=1.10", pos.HighestPriceSeen)
	}
}

func TestTickSkipsTokenOnPriceError(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, testRisk(), seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)
	mustRegister(t, e, "mintB", 1.00, 1.0)

	prices := &fakePrices{
		prices: map[string]float64{"mintB": 0.20},
		errs:   map[string]error{"mintA": domain.ErrNoPrice},
	}
	m := NewMonitor(e, prices, nil, 0, testLogger())
	m.Tick(context.Background())

	// The failed lookup leaves mintA untouched for the next tick; mintB is
	// still evaluated and stops out.
	if _, ok := e.Get("mintA"); !ok {
		t.Fatalf("mintA dropped on a price error")
	}
	if _, ok := e.Get("mintB"); ok {
		t.Fatalf("mintB should have stopped out despite mintA's error")
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	seller := &fakeSeller{}
	e := newTestEngine(t, testRisk(), seller, &fakeAlerter{})
	mustRegister(t, e, "mintA", 1.00, 1.0)

	block := make(chan struct{})
	prices := &fakePrices{prices: map[string]float64{"mintA": 1.10}, block: block}
	m := NewMonitor(e, prices, nil, 0, testLogger())

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		m.Tick(context.Background())
		close(done)
	}()
	<-started

	// The in-flight flag must reject a second tick while the first blocks
	// on the price lookup, and the blocked tick must not have touched the
	// position yet.
	for !m.inTick.Load() {
	}
	m.Tick(context.Background())
	pos, _ := e.Get("mintA")
	if pos.HighestPriceSeen != 1.00 {
		t.Fatalf("overlapping tick ran: high=%v", pos.HighestPriceSeen)
	}

	close(block)
	<-done
	pos, _ = e.Get("mintA")
	if pos.HighestPriceSeen != 1.10 {
		t.Fatalf("first tick never completed: high=%v", pos.HighestPriceSeen)
	}
}
