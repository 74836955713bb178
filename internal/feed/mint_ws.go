package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// dedupWindow is how long a token address is remembered; pool-creation
	// streams replay events on reconnect.
	dedupWindow = 10 * time.Minute
)

// MintHandler is called once per newly discovered tradable token.
type MintHandler func(ctx context.Context, sig domain.MintSignal)

// poolEvent is one message from the pool-creation stream.
type poolEvent struct {
	TokenAddress string `json:"token_address"`
	Symbol       string `json:"symbol"`
	PoolAddress  string `json:"pool_address"`
}

// MintFeed subscribes to a liquidity-pool creation WebSocket stream and
// delivers one MintSignal per new token to its handler. It reconnects with
// exponential backoff and deduplicates tokens across reconnects.
type MintFeed struct {
	wsURL   string
	handler MintHandler
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewMintFeed creates a feed for the given stream endpoint.
func NewMintFeed(wsURL string, handler MintHandler, logger *slog.Logger) *MintFeed {
	return &MintFeed{
		wsURL:   wsURL,
		handler: handler,
		logger:  logger.With(slog.String("component", "mint_feed")),
		seen:    make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Run connects and reads until ctx is cancelled or Close is called,
// reconnecting with backoff on every disconnect.
func (f *MintFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		f.logger.Warn("mint stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *MintFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := map[string]string{"op": "subscribe", "channel": "new_pools"}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("mint stream subscribed", slog.String("url", f.wsURL))

	// Close the connection when ctx ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-f.done:
			conn.Close()
		case <-stop:
		}
	}()

	go f.pingLoop(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.dispatch(ctx, data)
	}
}

func (f *MintFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *MintFeed) dispatch(ctx context.Context, data []byte) {
	var event poolEvent
	if err := json.Unmarshal(data, &event); err != nil {
		f.logger.Warn("undecodable stream message", slog.String("error", err.Error()))
		return
	}
	if event.TokenAddress == "" {
		return
	}
	if f.alreadySeen(event.TokenAddress) {
		return
	}

	sig := domain.MintSignal{
		ID:           uuid.New().String(),
		TokenAddress: event.TokenAddress,
		Symbol:       event.Symbol,
		Pool:         event.PoolAddress,
		DetectedAt:   time.Now(),
	}
	f.logger.Info("new token detected",
		slog.String("token", sig.TokenAddress),
		slog.String("symbol", sig.Symbol),
		slog.String("pool", sig.Pool))
	f.handler(ctx, sig)
}

// alreadySeen records the token and reports whether it was seen within the
// dedup window. Expired entries are pruned opportunistically.
func (f *MintFeed) alreadySeen(token string) bool {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for addr, at := range f.seen {
		if now.Sub(at) > dedupWindow {
			delete(f.seen, addr)
		}
	}
	if at, ok := f.seen[token]; ok && now.Sub(at) <= dedupWindow {
		return true
	}
	f.seen[token] = now
	return false
}

// Close stops the feed.
func (f *MintFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
