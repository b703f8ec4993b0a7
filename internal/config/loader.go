package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load decodes the TOML file at path over Defaults and applies LEDGERD_*
// environment overrides, after loading .env if present. A missing file is
// not an error: defaults plus environment are used. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose LEDGERD_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "LEDGERD_MODE")
	setStr(&cfg.LogLevel, "LEDGERD_LOG_LEVEL")

	// ── Server ──
	setInt(&cfg.Server.Port, "LEDGERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LEDGERD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LEDGERD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LEDGERD_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.VerifyWalletSignatures, "LEDGERD_SERVER_VERIFY_WALLET_SIGNATURES")
	setDuration(&cfg.Server.ShutdownTimeout, "LEDGERD_SERVER_SHUTDOWN_TIMEOUT")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "LEDGERD_STORAGE_BACKEND")
	setStr(&cfg.Storage.DataDir, "LEDGERD_STORAGE_DATA_DIR")
	setInt(&cfg.Storage.MaxRetries, "LEDGERD_STORAGE_MAX_RETRIES")
	setStr(&cfg.Storage.LockBackend, "LEDGERD_STORAGE_LOCK_BACKEND")
	setDuration(&cfg.Storage.LockTTL, "LEDGERD_STORAGE_LOCK_TTL")
	setDuration(&cfg.Storage.LockWait, "LEDGERD_STORAGE_LOCK_WAIT")

	// ── Auction ──
	setStr(&cfg.Auction.ID, "LEDGERD_AUCTION_ID")
	setDecimal(&cfg.Auction.StartPrice, "LEDGERD_AUCTION_START_PRICE")
	setStr(&cfg.Auction.DefaultTaunt, "LEDGERD_AUCTION_DEFAULT_TAUNT")
	setInt(&cfg.Auction.HistoryLimit, "LEDGERD_AUCTION_HISTORY_LIMIT")
	setInt(&cfg.Auction.DefaultHistoryPage, "LEDGERD_AUCTION_DEFAULT_HISTORY_PAGE")
	setInt(&cfg.Auction.MaxTauntLength, "LEDGERD_AUCTION_MAX_TAUNT_LENGTH")
	setStr(&cfg.Auction.Archive, "LEDGERD_AUCTION_ARCHIVE")

	// ── Settlement ──
	setDecimal(&cfg.Settlement.FeeRate, "LEDGERD_SETTLEMENT_FEE_RATE")
	setStr(&cfg.Settlement.PlatformWallet, "LEDGERD_SETTLEMENT_PLATFORM_WALLET")
	setStr(&cfg.Settlement.AdminSecret, "LEDGERD_SETTLEMENT_ADMIN_SECRET")
	setStr(&cfg.Settlement.AdminSecret, "ADMIN_SECRET") // compatibility alias
	setStr(&cfg.Settlement.AdminSecretHash, "LEDGERD_SETTLEMENT_ADMIN_SECRET_HASH")
	setStr(&cfg.Settlement.AdminSecretFile, "LEDGERD_SETTLEMENT_ADMIN_SECRET_FILE")
	setStr(&cfg.Settlement.AdminSecretPassword, "LEDGERD_SETTLEMENT_ADMIN_SECRET_PASSWORD")
	setInt(&cfg.Settlement.AmountPrecision, "LEDGERD_SETTLEMENT_AMOUNT_PRECISION")
	setBool(&cfg.Settlement.Receipts, "LEDGERD_SETTLEMENT_RECEIPTS")
	setDuration(&cfg.Settlement.PayoutRetryAfter, "LEDGERD_SETTLEMENT_PAYOUT_RETRY_AFTER")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "LEDGERD_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "LEDGERD_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "LEDGERD_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "LEDGERD_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "LEDGERD_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "LEDGERD_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "LEDGERD_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "LEDGERD_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "LEDGERD_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "LEDGERD_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGERD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGERD_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "LEDGERD_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LEDGERD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LEDGERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGERD_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "LEDGERD_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "LEDGERD_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "LEDGERD_KAFKA_TOPIC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LEDGERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGERD_NOTIFY_EVENTS")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			*dst = d
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
