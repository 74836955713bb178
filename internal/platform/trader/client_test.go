package trader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuyDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/buy" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header got=%q", got)
		}
		var req buyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.TokenAddress != "mintA" || req.Amount != 0.5 {
			t.Errorf("request got=%+v", req)
		}
		json.NewEncoder(w).Encode(buyResponse{
			Success: true, PositionID: "pos-1", TxID: "tx-1", FillPrice: 0.0001,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	res, err := c.Buy(context.Background(), "mintA", 0.5)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.Success || res.PositionID != "pos-1" || res.FillPrice != 0.0001 {
		t.Fatalf("result got=%+v", res)
	}
}

func TestNon2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.Buy(context.Background(), "mintA", 0.5); err == nil {
		t.Fatalf("429 must surface as an error")
	}
	if _, err := c.SellPercentage(context.Background(), "pos-1", 100); err == nil {
		t.Fatalf("429 must surface as an error")
	}
}

func TestWalletBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/balance" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(balanceResponse{Balance: 1.25})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	got, err := c.WalletBalance(context.Background())
	if err != nil {
		t.Fatalf("wallet balance: %v", err)
	}
	if got != 1.25 {
		t.Fatalf("balance got=%v want=1.25", got)
	}
}

func TestTimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 20*time.Millisecond)
	if _, err := c.SellPercentage(context.Background(), "pos-1", 50); err == nil {
		t.Fatalf("timeout must surface as an error")
	}
}

func TestListOpenPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/positions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"token_address":"mintA","position_id":"pos-1","size":1.5}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	positions, err := c.ListOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 1 || positions[0].TokenAddress != "mintA" || positions[0].Size != 1.5 {
		t.Fatalf("positions got=%+v", positions)
	}
}
