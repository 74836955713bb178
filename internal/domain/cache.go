package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest observed prices. Reads are
// batched; the status report is the only consumer and always asks for every
// open position at once.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error
	GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error)
}

// SignalBus provides pub/sub fan-out and a durable append-only event log.
// The streams are written for external consumers; the bot itself only reads
// the live pub/sub side.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
