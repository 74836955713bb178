package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// priceTTL expires a token's cached price after the position monitor has
// clearly stopped refreshing it, keeping dead mints from accumulating.
const priceTTL = 30 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each token's
// last observed price is stored at key "price:{tokenAddress}" with fields
// "price" and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(tokenAddress string) string {
	return "price:" + tokenAddress
}

// SetPrice stores the latest price and observation time for a token and
// refreshes the key's expiry.
func (pc *PriceCache) SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error {
	key := priceKey(tokenAddress)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", tokenAddress, err)
	}
	return nil
}

// GetPrices retrieves the latest prices for multiple tokens using a pipeline.
// Tokens without a cached price are silently omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error) {
	if len(tokenAddresses) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenAddresses))
	for _, addr := range tokenAddresses {
		cmds[addr] = pipe.HGetAll(ctx, priceKey(addr))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(tokenAddresses))
	for addr, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[addr] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
