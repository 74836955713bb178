package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Trader ──
	setStr(&cfg.Trader.BaseURL, "SNIPER_TRADER_BASE_URL")
	setStr(&cfg.Trader.ApiKey, "SNIPER_TRADER_API_KEY")
	setDuration(&cfg.Trader.Timeout, "SNIPER_TRADER_TIMEOUT")

	// ── Pricefeed ──
	setStr(&cfg.Pricefeed.BaseURL, "SNIPER_PRICEFEED_BASE_URL")
	setDuration(&cfg.Pricefeed.Timeout, "SNIPER_PRICEFEED_TIMEOUT")
	setDuration(&cfg.Pricefeed.CheckInterval, "SNIPER_PRICEFEED_CHECK_INTERVAL")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "SNIPER_FEED_WS_URL")

	// ── Screen ──
	setBool(&cfg.Screen.Enabled, "SNIPER_SCREEN_ENABLED")
	setStr(&cfg.Screen.BaseURL, "SNIPER_SCREEN_BASE_URL")
	setInt(&cfg.Screen.MaxScore, "SNIPER_SCREEN_MAX_SCORE")
	setDuration(&cfg.Screen.Timeout, "SNIPER_SCREEN_TIMEOUT")

	// ── Risk ──
	setFloat64(&cfg.Risk.InitialStopLossPct, "SNIPER_RISK_INITIAL_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.FullExitPct, "SNIPER_RISK_FULL_EXIT_PCT")
	setBool(&cfg.Risk.Breakeven.Enabled, "SNIPER_RISK_BREAKEVEN_ENABLED")
	setFloat64(&cfg.Risk.Breakeven.TriggerProfitPct, "SNIPER_RISK_BREAKEVEN_TRIGGER_PROFIT_PCT")
	setFloat64(&cfg.Risk.Breakeven.OffsetPct, "SNIPER_RISK_BREAKEVEN_OFFSET_PCT")
	setBool(&cfg.Risk.Trailing.Enabled, "SNIPER_RISK_TRAILING_ENABLED")
	setFloat64(&cfg.Risk.Trailing.ActivationProfitPct, "SNIPER_RISK_TRAILING_ACTIVATION_PROFIT_PCT")
	setFloat64(&cfg.Risk.Trailing.DistancePct, "SNIPER_RISK_TRAILING_DISTANCE_PCT")

	// ── Sizing ──
	setFloat64(&cfg.Sizing.Reserve, "SNIPER_SIZING_RESERVE")
	setStr(&cfg.Sizing.Mode, "SNIPER_SIZING_MODE")
	setFloat64(&cfg.Sizing.FixedAmount, "SNIPER_SIZING_FIXED_AMOUNT")
	setFloat64(&cfg.Sizing.Percentage, "SNIPER_SIZING_PERCENTAGE")
	setFloat64(&cfg.Sizing.MinTradeSize, "SNIPER_SIZING_MIN_TRADE_SIZE")
	setFloat64(&cfg.Sizing.MaxTradeSize, "SNIPER_SIZING_MAX_TRADE_SIZE")
	setDuration(&cfg.Sizing.CacheTTL, "SNIPER_SIZING_CACHE_TTL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "SNIPER_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "SNIPER_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SNIPER_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SNIPER_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SNIPER_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SNIPER_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SNIPER_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "SNIPER_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "SNIPER_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "SNIPER_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNIPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SNIPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SNIPER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SNIPER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SNIPER_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SNIPER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SNIPER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SNIPER_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	// ── Status ──
	setDuration(&cfg.Status.Interval, "SNIPER_STATUS_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPER_MODE")
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
