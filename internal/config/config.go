// Package config defines the top-level configuration for the sniper bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Trader    TraderConfig    `toml:"trader"`
	Pricefeed PricefeedConfig `toml:"pricefeed"`
	Feed      FeedConfig      `toml:"feed"`
	Screen    ScreenConfig    `toml:"screen"`
	Risk      RiskConfig      `toml:"risk"`
	Sizing    SizingConfig    `toml:"sizing"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Status    StatusConfig    `toml:"status"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// TraderConfig holds the trade-execution service endpoint and credentials.
type TraderConfig struct {
	BaseURL string   `toml:"base_url"`
	ApiKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// PricefeedConfig holds the price source endpoint and the monitor cadence.
type PricefeedConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       duration `toml:"timeout"`
	CheckInterval duration `toml:"check_interval"`
}

// FeedConfig holds the new-token WebSocket stream endpoint.
type FeedConfig struct {
	WsURL string `toml:"ws_url"`
}

// ScreenConfig holds the token screening service parameters.
type ScreenConfig struct {
	Enabled  bool     `toml:"enabled"`
	BaseURL  string   `toml:"base_url"`
	MaxScore int      `toml:"max_score"`
	Timeout  duration `toml:"timeout"`
}

// RiskConfig holds the per-position risk state machine parameters.
type RiskConfig struct {
	InitialStopLossPct float64           `toml:"initial_stop_loss_pct"`
	FullExitPct        float64           `toml:"full_exit_pct"`
	Breakeven          BreakevenConfig   `toml:"breakeven"`
	Trailing           TrailingConfig    `toml:"trailing"`
	Levels             []TakeProfitLevel `toml:"levels"`
}

// BreakevenConfig holds the one-time breakeven stop move parameters.
type BreakevenConfig struct {
	Enabled          bool    `toml:"enabled"`
	TriggerProfitPct float64 `toml:"trigger_profit_pct"`
	OffsetPct        float64 `toml:"offset_pct"`
}

// TrailingConfig holds the trailing stop parameters.
type TrailingConfig struct {
	Enabled             bool    `toml:"enabled"`
	ActivationProfitPct float64 `toml:"activation_profit_pct"`
	DistancePct         float64 `toml:"distance_pct"`
}

// TakeProfitLevel is one rung of the take-profit ladder.
type TakeProfitLevel struct {
	ProfitPct float64 `toml:"profit_pct"`
	SellPct   float64 `toml:"sell_pct"`
	Label     string  `toml:"label"`
}

// SizingConfig holds balance-aware position sizing parameters.
type SizingConfig struct {
	Reserve      float64  `toml:"reserve"`
	Mode         string   `toml:"mode"` // "fixed" or "percentage"
	FixedAmount  float64  `toml:"fixed_amount"`
	Percentage   float64  `toml:"percentage"`
	MinTradeSize float64  `toml:"min_trade_size"`
	MaxTradeSize float64  `toml:"max_trade_size"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// StatusConfig holds the periodic status report cadence.
type StatusConfig struct {
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "30m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trader: TraderConfig{
			Timeout: duration{30 * time.Second},
		},
		Pricefeed: PricefeedConfig{
			BaseURL:       "https://api.dexscreener.com",
			Timeout:       duration{10 * time.Second},
			CheckInterval: duration{5 * time.Second},
		},
		Screen: ScreenConfig{
			Enabled:  true,
			BaseURL:  "https://api.rugcheck.xyz",
			MaxScore: 5000,
			Timeout:  duration{10 * time.Second},
		},
		Risk: RiskConfig{
			InitialStopLossPct: 60,
			FullExitPct:        100,
			Breakeven: BreakevenConfig{
				Enabled:          true,
				TriggerProfitPct: 25,
				OffsetPct:        8,
			},
			Trailing: TrailingConfig{
				Enabled:             true,
				ActivationProfitPct: 40,
				DistancePct:         25,
			},
			Levels: []TakeProfitLevel{
				{ProfitPct: 30, SellPct: 15, Label: "tp1"},
				{ProfitPct: 80, SellPct: 25, Label: "tp2"},
				{ProfitPct: 200, SellPct: 30, Label: "tp3"},
				{ProfitPct: 500, SellPct: 30, Label: "moonbag"},
			},
		},
		Sizing: SizingConfig{
			Reserve:      0.05,
			Mode:         "fixed",
			FixedAmount:  0.1,
			Percentage:   10,
			MinTradeSize: 0.01,
			MaxTradeSize: 1.0,
			CacheTTL:     duration{5 * time.Second},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  0,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Status: StatusConfig{
			Interval: duration{30 * time.Minute},
		},
		Mode:     "snipe",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"snipe":   true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snipe, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Trader.BaseURL == "" {
		errs = append(errs, "trader: base_url must not be empty")
	}
	if c.Pricefeed.BaseURL == "" {
		errs = append(errs, "pricefeed: base_url must not be empty")
	}
	if c.Pricefeed.CheckInterval.Duration <= 0 {
		errs = append(errs, "pricefeed: check_interval must be positive")
	}
	if strings.ToLower(c.Mode) == "snipe" && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url is required for snipe mode")
	}
	if c.Screen.Enabled && c.Screen.BaseURL == "" {
		errs = append(errs, "screen: base_url must not be empty when enabled")
	}

	riskCfg := c.Risk.Domain()
	if err := riskCfg.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("risk: %v", err))
	}

	switch domain.SizingMode(c.Sizing.Mode) {
	case domain.SizingModeFixed:
		if c.Sizing.FixedAmount <= 0 {
			errs = append(errs, "sizing: fixed_amount must be > 0 in fixed mode")
		}
	case domain.SizingModePercentage:
		if c.Sizing.Percentage <= 0 || c.Sizing.Percentage > 100 {
			errs = append(errs, fmt.Sprintf("sizing: percentage must be in (0, 100], got %v", c.Sizing.Percentage))
		}
	default:
		errs = append(errs, fmt.Sprintf("sizing: unknown mode %q (valid: fixed, percentage)", c.Sizing.Mode))
	}
	if c.Sizing.Reserve < 0 {
		errs = append(errs, "sizing: reserve must be >= 0")
	}
	if c.Sizing.MinTradeSize < 0 {
		errs = append(errs, "sizing: min_trade_size must be >= 0")
	}
	if c.Sizing.MaxTradeSize > 0 && c.Sizing.MaxTradeSize < c.Sizing.MinTradeSize {
		errs = append(errs, "sizing: max_trade_size must not be below min_trade_size")
	}

	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Domain converts the TOML risk section into the engine's immutable config.
func (r RiskConfig) Domain() domain.RiskConfig {
	levels := make([]domain.TakeProfitLevel, 0, len(r.Levels))
	for _, lvl := range r.Levels {
		levels = append(levels, domain.TakeProfitLevel{
			ProfitPct: lvl.ProfitPct,
			SellPct:   lvl.SellPct,
			Label:     lvl.Label,
		})
	}
	return domain.RiskConfig{
		InitialStopLossPct: r.InitialStopLossPct,
		FullExitPct:        r.FullExitPct,
		Breakeven: domain.BreakevenConfig{
			Enabled:          r.Breakeven.Enabled,
			TriggerProfitPct: r.Breakeven.TriggerProfitPct,
			OffsetPct:        r.Breakeven.OffsetPct,
		},
		Trailing: domain.TrailingConfig{
			Enabled:             r.Trailing.Enabled,
			ActivationProfitPct: r.Trailing.ActivationProfitPct,
			DistancePct:         r.Trailing.DistancePct,
		},
		Levels: levels,
	}
}
