// Package config defines the ledgerd configuration, its defaults and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LEDGERD_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Auction    AuctionConfig    `toml:"auction"`
	Settlement SettlementConfig `toml:"settlement"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Notify     NotifyConfig     `toml:"notify"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards state-changing requests when set.
	APIKey                 string   `toml:"api_key"`
	RateLimit              int      `toml:"rate_limit"`
	RateWindow             duration `toml:"rate_window"`
	VerifyWalletSignatures bool     `toml:"verify_wallet_signatures"`
	ShutdownTimeout        duration `toml:"shutdown_timeout"`
}

// StorageConfig selects where ledger documents live and how writers are
// serialized.
type StorageConfig struct {
	Backend     string   `toml:"backend"` // memory | file | postgres
	DataDir     string   `toml:"data_dir"`
	MaxRetries  int      `toml:"max_retries"`
	LockBackend string   `toml:"lock_backend"` // local | redis
	LockTTL     duration `toml:"lock_ttl"`
	LockWait    duration `toml:"lock_wait"`
}

// AuctionConfig holds auction parameters.
type AuctionConfig struct {
	ID                 string          `toml:"id"`
	StartPrice         decimal.Decimal `toml:"start_price"`
	DefaultTaunt       string          `toml:"default_taunt"`
	HistoryLimit       int             `toml:"history_limit"`
	DefaultHistoryPage int             `toml:"default_history_page"`
	MaxTauntLength     int             `toml:"max_taunt_length"`
	Archive            string          `toml:"archive"` // none | postgres | s3
}

// SettlementConfig holds prediction-market settlement parameters.
type SettlementConfig struct {
	FeeRate         decimal.Decimal `toml:"fee_rate"`
	PlatformWallet  string          `toml:"platform_wallet"`
	AdminSecret     string          `toml:"admin_secret"`
	AdminSecretHash string          `toml:"admin_secret_hash"`
	// AdminSecretFile is a secret sealed with AdminSecretPassword.
	AdminSecretFile     string `toml:"admin_secret_file"`
	AdminSecretPassword string `toml:"admin_secret_password"`
	AmountPrecision     int    `toml:"amount_precision"`
	// Receipts writes a JSON receipt per distributed market to S3.
	Receipts bool `toml:"receipts"`

	// PayoutRetryAfter is how long a payout handoff may stay PENDING before
	// an admin replay of distribute resends it.
	PayoutRetryAfter duration `toml:"payout_retry_after"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// StreamMaxLen trims streams approximately; 0 keeps everything.
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig configures the ledger event producer.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// NotifyConfig holds notification channel credentials. Events filters which
// event types are sent; empty sends all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Mode:     "server",
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{15 * time.Second},
		},
		Storage: StorageConfig{
			Backend:     "file",
			DataDir:     "./data",
			MaxRetries:  3,
			LockBackend: "local",
			LockTTL:     duration{10 * time.Second},
			LockWait:    duration{2 * time.Second},
		},
		Auction: AuctionConfig{
			ID:                 "main",
			StartPrice:         decimal.NewFromInt(1000),
			DefaultTaunt:       "Waiting for the first bidder",
			HistoryLimit:       100,
			DefaultHistoryPage: 20,
			MaxTauntLength:     100,
			Archive:            "none",
		},
		Settlement: SettlementConfig{
			FeeRate:          decimal.RequireFromString("0.05"),
			PlatformWallet:   "JBuwuVzAFDZWVW4o63PtYfLvPGHbSNnRMv5hPzcstyK6",
			AmountPrecision:  6,
			PayoutRetryAfter: duration{2 * time.Minute},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ledgerd",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Topic: "ledgerd.events",
		},
	}
}

var validModes = map[string]bool{
	"server":  true,
	"migrate": true,
	"payouts": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{"memory": true, "file": true, "postgres": true}

var validArchives = map[string]bool{"none": true, "postgres": true, "s3": true}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, migrate, payouts)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, file, postgres)", c.Storage.Backend))
	}
	if c.Storage.Backend == "file" && strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, "storage: data_dir is required for the file backend")
	}
	if c.Storage.MaxRetries < 1 {
		errs = append(errs, "storage: max_retries must be >= 1")
	}
	switch c.Storage.LockBackend {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "storage: lock_backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown lock_backend %q (valid: local, redis)", c.Storage.LockBackend))
	}
	if c.Storage.LockTTL.Duration <= 0 {
		errs = append(errs, "storage: lock_ttl must be positive")
	}
	if mode == "migrate" && c.Storage.Backend != "postgres" {
		errs = append(errs, "mode migrate requires storage.backend = postgres")
	}
	if mode == "payouts" && !c.Redis.Enabled {
		errs = append(errs, "mode payouts requires redis.enabled")
	}

	// Auction
	if strings.TrimSpace(c.Auction.ID) == "" {
		errs = append(errs, "auction: id must not be empty")
	}
	if !c.Auction.StartPrice.IsPositive() {
		errs = append(errs, "auction: start_price must be > 0")
	}
	if c.Auction.HistoryLimit < 1 {
		errs = append(errs, "auction: history_limit must be >= 1")
	}
	if c.Auction.DefaultHistoryPage < 1 {
		errs = append(errs, "auction: default_history_page must be >= 1")
	}
	if c.Auction.MaxTauntLength < 1 {
		errs = append(errs, "auction: max_taunt_length must be >= 1")
	}
	switch {
	case !validArchives[c.Auction.Archive]:
		errs = append(errs, fmt.Sprintf("auction: unknown archive %q (valid: none, postgres, s3)", c.Auction.Archive))
	case c.Auction.Archive == "postgres" && c.Storage.Backend != "postgres":
		errs = append(errs, "auction: archive postgres requires storage.backend = postgres")
	case c.Auction.Archive == "s3" && !c.S3.Enabled:
		errs = append(errs, "auction: archive s3 requires s3.enabled")
	}

	// Settlement
	if c.Settlement.FeeRate.IsNegative() || c.Settlement.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("settlement: fee_rate must be within [0, 1], got %s", c.Settlement.FeeRate))
	}
	if strings.TrimSpace(c.Settlement.PlatformWallet) == "" {
		errs = append(errs, "settlement: platform_wallet must not be empty")
	}
	if c.Settlement.AmountPrecision < 0 || c.Settlement.AmountPrecision > 18 {
		errs = append(errs, fmt.Sprintf("settlement: amount_precision must be 0-18, got %d", c.Settlement.AmountPrecision))
	}
	if mode == "server" && c.Settlement.AdminSecret == "" && c.Settlement.AdminSecretHash == "" && c.Settlement.AdminSecretFile == "" {
		errs = append(errs, "settlement: one of admin_secret, admin_secret_hash or admin_secret_file must be set")
	}
	if c.Settlement.AdminSecretFile != "" && c.Settlement.AdminSecretPassword == "" {
		errs = append(errs, "settlement: admin_secret_password is required when admin_secret_file is set")
	}
	if c.Settlement.PayoutRetryAfter.Duration <= 0 {
		errs = append(errs, "settlement: payout_retry_after must be positive")
	}
	if c.Settlement.Receipts && !c.S3.Enabled {
		errs = append(errs, "settlement: receipts require s3.enabled")
	}

	// Supabase
	if c.Storage.Backend == "postgres" {
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
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
