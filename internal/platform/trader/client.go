package trader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Client is the REST client for the external trade-execution service. The
// service settles trades on-chain on our behalf; this client only submits
// orders and reads results. Non-2xx responses and timeouts are both surfaced
// as errors the caller treats as recoverable.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var (
	_ domain.TradeExecutor = (*Client)(nil)
	_ domain.BalanceSource = (*Client)(nil)
)

// NewClient creates a trade-execution client.
//
// baseURL is the service root, e.g. "https://trader.example.com". timeout
// bounds every request; zero falls back to 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type buyRequest struct {
	TokenAddress string  `json:"token_address"`
	Amount       float64 `json:"amount"`
}

type buyResponse struct {
	Success    bool    `json:"success"`
	PositionID string  `json:"position_id"`
	TxID       string  `json:"tx_id"`
	FillPrice  float64 `json:"fill_price"`
	Message    string  `json:"message"`
}

// Buy submits a market buy for the token.
func (c *Client) Buy(ctx context.Context, tokenAddress string, amount float64) (domain.BuyResult, error) {
	body, err := c.doPost(ctx, "/api/v1/buy", buyRequest{TokenAddress: tokenAddress, Amount: amount})
	if err != nil {
		return domain.BuyResult{}, fmt.Errorf("trader: buy %s: %w", tokenAddress, err)
	}

	var resp buyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BuyResult{}, fmt.Errorf("trader: decode buy response: %w", err)
	}
	return domain.BuyResult{
		Success:    resp.Success,
		PositionID: resp.PositionID,
		TxID:       resp.TxID,
		FillPrice:  resp.FillPrice,
		Message:    resp.Message,
	}, nil
}

type sellRequest struct {
	PositionID string  `json:"position_id"`
	Percentage float64 `json:"percentage"`
}

type sellResponse struct {
	Success bool   `json:"success"`
	TxID    string `json:"tx_id"`
	Message string `json:"message"`
}

// SellPercentage sells a percentage of the position's original size.
func (c *Client) SellPercentage(ctx context.Context, positionID string, pct float64) (domain.SellResult, error) {
	body, err := c.doPost(ctx, "/api/v1/sell", sellRequest{PositionID: positionID, Percentage: pct})
	if err != nil {
		return domain.SellResult{}, fmt.Errorf("trader: sell %s: %w", positionID, err)
	}

	var resp sellResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SellResult{}, fmt.Errorf("trader: decode sell response: %w", err)
	}
	return domain.SellResult{Success: resp.Success, TxID: resp.TxID, Message: resp.Message}, nil
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

// WalletBalance returns the wallet's current SOL balance as reported by the
// trade-execution service.
func (c *Client) WalletBalance(ctx context.Context) (float64, error) {
	body, err := c.doGet(ctx, "/api/v1/balance")
	if err != nil {
		return 0, fmt.Errorf("trader: wallet balance: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("trader: decode balance: %w", err)
	}
	return resp.Balance, nil
}

type apiPosition struct {
	TokenAddress string  `json:"token_address"`
	PositionID   string  `json:"position_id"`
	Size         float64 `json:"size"`
}

// ListOpenPositions returns the positions the service currently holds for us.
// Used at startup to reconcile the in-memory position book.
func (c *Client) ListOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	body, err := c.doGet(ctx, "/api/v1/positions")
	if err != nil {
		return nil, fmt.Errorf("trader: list positions: %w", err)
	}

	var apiPositions []apiPosition
	if err := json.Unmarshal(body, &apiPositions); err != nil {
		return nil, fmt.Errorf("trader: decode positions: %w", err)
	}

	positions := make([]domain.OpenPosition, 0, len(apiPositions))
	for _, p := range apiPositions {
		positions = append(positions, domain.OpenPosition{
			TokenAddress: p.TokenAddress,
			PositionID:   p.PositionID,
			Size:         p.Size,
		})
	}
	return positions, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.do(req)
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
