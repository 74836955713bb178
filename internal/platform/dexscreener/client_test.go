package dexscreener

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func newTestClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestPricePicksDeepestPair(t *testing.T) {
	c := newTestClient(t, `{"pairs":[
		{"priceNative":"0.001","liquidity":{"usd":500}},
		{"priceNative":"0.002","liquidity":{"usd":90000}},
		{"priceNative":"0.003","liquidity":{"usd":10}}
	]}`)
	price, err := c.Price(context.Background(), "mintA")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price != 0.002 {
		t.Fatalf("price got=%v want=0.002 (deepest pair)", price)
	}
}

func TestPriceRejectsGarbageQuotes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no pairs", `{"pairs":[]}`},
		{"null pairs", `{"pairs":null}`},
		{"empty price", `{"pairs":[{"priceNative":"","liquidity":{"usd":100}}]}`},
		{"non-numeric", `{"pairs":[{"priceNative":"abc","liquidity":{"usd":100}}]}`},
		{"zero", `{"pairs":[{"priceNative":"0","liquidity":{"usd":100}}]}`},
		{"negative", `{"pairs":[{"priceNative":"-1.5","liquidity":{"usd":100}}]}`},
		{"absurd", `{"pairs":[{"priceNative":"1e12","liquidity":{"usd":100}}]}`},
	}
	for _, tc := range cases {
		c := newTestClient(t, tc.body)
		if _, err := c.Price(context.Background(), "mintA"); !errors.Is(err, domain.ErrNoPrice) {
			t.Fatalf("%s: err got=%v want ErrNoPrice", tc.name, err)
		}
	}
}

func TestPriceErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Price(context.Background(), "mintA"); err == nil {
		t.Fatalf("502 must surface as an error")
	}
}
