package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/sniperbot/internal/balance"
	s3blob "github.com/alanyoungcy/sniperbot/internal/blob/s3"
	"github.com/alanyoungcy/sniperbot/internal/cache/redis"
	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/engine"
	"github.com/alanyoungcy/sniperbot/internal/executor"
	"github.com/alanyoungcy/sniperbot/internal/notify"
	"github.com/alanyoungcy/sniperbot/internal/platform/dexscreener"
	"github.com/alanyoungcy/sniperbot/internal/platform/rugcheck"
	"github.com/alanyoungcy/sniperbot/internal/platform/trader"
	"github.com/alanyoungcy/sniperbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	TradeStore domain.TradeStore
	AuditStore domain.AuditStore

	// Caches
	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus

	// Blob storage (nil unless archiving is enabled)
	Archiver domain.Archiver

	// External services
	Trader   *trader.Client
	Prices   *dexscreener.Client
	Screener domain.Screener // nil when screening is disabled

	// Core
	Balance     *balance.Provider
	Engine      *engine.Engine
	Monitor     *engine.Monitor
	Coordinator *executor.Coordinator

	// Notifications
	Notifier *notify.Notifier
	Events   *notify.TradeEvents
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when trade archiving is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewTradeArchiver(
			s3blob.NewWriter(s3Client),
			deps.TradeStore,
			deps.AuditStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Events = notify.NewTradeEvents(deps.Notifier)

	// --- External service clients ---
	deps.Trader = trader.NewClient(cfg.Trader.BaseURL, cfg.Trader.ApiKey, cfg.Trader.Timeout.Duration)
	deps.Prices = dexscreener.NewClient(cfg.Pricefeed.BaseURL, cfg.Pricefeed.Timeout.Duration)
	if cfg.Screen.Enabled {
		deps.Screener = rugcheck.NewClient(cfg.Screen.BaseURL, cfg.Screen.MaxScore, cfg.Screen.Timeout.Duration)
	}

	// --- Balance provider ---
	deps.Balance = balance.NewProvider(balance.Config{
		Reserve:      cfg.Sizing.Reserve,
		Mode:         domain.SizingMode(cfg.Sizing.Mode),
		FixedAmount:  cfg.Sizing.FixedAmount,
		Percentage:   cfg.Sizing.Percentage,
		MinTradeSize: cfg.Sizing.MinTradeSize,
		MaxTradeSize: cfg.Sizing.MaxTradeSize,
		CacheTTL:     cfg.Sizing.CacheTTL.Duration,
	}, deps.Trader, logger)

	// --- Risk engine, price monitor, execution coordinator ---
	deps.Engine = engine.New(
		cfg.Risk.Domain(),
		deps.Trader,
		deps.Events,
		deps.TradeStore,
		deps.AuditStore,
		deps.SignalBus,
		logger,
	)
	deps.Monitor = engine.NewMonitor(
		deps.Engine,
		deps.Prices,
		deps.PriceCache,
		cfg.Pricefeed.CheckInterval.Duration,
		logger,
	)
	deps.Coordinator = executor.NewCoordinator(
		deps.Trader,
		deps.Prices,
		deps.Screener,
		deps.Balance,
		deps.Engine,
		deps.Events,
		logger,
	)

	return deps, cleanup, nil
}
