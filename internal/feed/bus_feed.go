package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// resubscribeDelay is how long the bus feed waits before resubscribing after
// its subscription channel closes, which happens when the Redis connection
// drops.
const resubscribeDelay = 2 * time.Second

// BusFeed consumes operator-injected mint signals from a pub/sub channel and
// hands them to the same handler the WebSocket feed drives. It lets an
// operator (or another process) push a token into the buy pipeline with a
// single PUBLISH, without touching the pool-creation stream.
type BusFeed struct {
	bus     domain.SignalBus
	channel string
	handler MintHandler
	logger  *slog.Logger
}

// NewBusFeed creates a feed reading MintSignal JSON from the given channel.
func NewBusFeed(bus domain.SignalBus, channel string, handler MintHandler, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:     bus,
		channel: channel,
		handler: handler,
		logger:  logger.With(slog.String("component", "bus_feed")),
	}
}

// Run subscribes and dispatches until ctx is cancelled, resubscribing when
// the underlying subscription drops.
func (f *BusFeed) Run(ctx context.Context) error {
	for {
		msgs, err := f.bus.Subscribe(ctx, f.channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("subscribe failed, retrying",
				slog.String("channel", f.channel),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(resubscribeDelay):
			}
			continue
		}
		f.logger.Info("listening for injected signals", slog.String("channel", f.channel))

		for payload := range msgs {
			f.dispatch(ctx, payload)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("signal subscription closed, resubscribing",
			slog.String("channel", f.channel))
	}
}

func (f *BusFeed) dispatch(ctx context.Context, payload []byte) {
	var sig domain.MintSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		f.logger.Warn("undecodable injected signal", slog.String("error", err.Error()))
		return
	}
	if sig.TokenAddress == "" {
		f.logger.Warn("injected signal without token address dropped")
		return
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.DetectedAt.IsZero() {
		sig.DetectedAt = time.Now()
	}
	f.logger.Info("injected signal accepted",
		slog.String("token", sig.TokenAddress),
		slog.String("symbol", sig.Symbol))
	f.handler(ctx, sig)
}
