package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// maxPlausiblePrice rejects obviously broken quotes before they reach the
// risk engine. Nothing this bot trades is worth a million SOL per token.
const maxPlausiblePrice = 1e6

// Client reads token prices from the DexScreener pair API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.PriceSource = (*Client)(nil)

// NewClient creates a DexScreener client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	PriceNative string `json:"priceNative"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Price returns the token's price in the chain's native currency, taken from
// the pair with the deepest liquidity. Missing, null, non-finite, or
// out-of-bound quotes yield domain.ErrNoPrice rather than a garbage value.
func (c *Client) Price(ctx context.Context, tokenAddress string) (float64, error) {
	path := "/latest/dex/tokens/" + url.PathEscape(tokenAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dexscreener: unexpected status %d", resp.StatusCode)
	}

	var parsed pairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("dexscreener: decode response: %w", err)
	}

	best, ok := deepestPair(parsed.Pairs)
	if !ok {
		return 0, fmt.Errorf("dexscreener: %s: %w", tokenAddress, domain.ErrNoPrice)
	}
	price, err := parsePrice(best.PriceNative)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: %s: %w", tokenAddress, domain.ErrNoPrice)
	}
	return price, nil
}

// deepestPair picks the pair with the most liquidity that carries a usable
// quote at all.
func deepestPair(pairs []pair) (pair, bool) {
	var best pair
	found := false
	for _, p := range pairs {
		if p.PriceNative == "" {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best = p
			found = true
		}
	}
	return best, found
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("non-finite price %q", raw)
	}
	if price <= 0 || price > maxPlausiblePrice {
		return 0, fmt.Errorf("price %v out of bounds", price)
	}
	return price, nil
}
