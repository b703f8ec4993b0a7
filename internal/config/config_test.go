package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DecodesOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "server"
log_level = "debug"

[server]
port = 9090
rate_window = "30s"

[auction]
start_price = "2500.5"
archive = "s3"

[settlement]
fee_rate = "0.025"
admin_secret = "s"

[s3]
enabled = true
bucket = "receipts"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.True(t, cfg.Auction.StartPrice.Equal(decimal.RequireFromString("2500.5")))
	assert.True(t, cfg.Settlement.FeeRate.Equal(decimal.RequireFromString("0.025")))
	assert.Equal(t, "receipts", cfg.S3.Bucket)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Auction.HistoryLimit)
	assert.Equal(t, "file", cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEDGERD_SERVER_PORT", "7000")
	t.Setenv("LEDGERD_SETTLEMENT_FEE_RATE", "0.1")
	t.Setenv("LEDGERD_SETTLEMENT_ADMIN_SECRET", "from-env")
	t.Setenv("LEDGERD_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LEDGERD_STORAGE_LOCK_TTL", "3s")
	t.Setenv("LEDGERD_SETTLEMENT_PAYOUT_RETRY_AFTER", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Settlement.FeeRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "from-env", cfg.Settlement.AdminSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Storage.LockTTL.Duration)
	assert.Equal(t, 45*time.Second, cfg.Settlement.PayoutRetryAfter.Duration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Settlement.AdminSecret = "s"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"no admin secret", func(c *Config) { c.Settlement.AdminSecret = "" }, "admin_secret"},
		{"hash is enough", func(c *Config) {
			c.Settlement.AdminSecret = ""
			c.Settlement.AdminSecretHash = "$2a$10$abc"
		}, ""},
		{"sealed file needs password", func(c *Config) { c.Settlement.AdminSecretFile = "/x" }, "admin_secret_password"},
		{"fee above one", func(c *Config) { c.Settlement.FeeRate = decimal.NewFromInt(2) }, "fee_rate"},
		{"zero start price", func(c *Config) { c.Auction.StartPrice = decimal.Zero }, "start_price"},
		{"redis lock without redis", func(c *Config) { c.Storage.LockBackend = "redis" }, "lock_backend redis"},
		{"postgres archive on file backend", func(c *Config) { c.Auction.Archive = "postgres" }, "archive postgres"},
		{"migrate needs postgres", func(c *Config) { c.Mode = "migrate" }, "mode migrate"},
		{"payouts needs redis", func(c *Config) { c.Mode = "payouts" }, "mode payouts"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka: brokers"},
		{"receipts need s3", func(c *Config) { c.Settlement.Receipts = true }, "receipts"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mysql" }, "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	c := Defaults()
	c.Mode = "nope"
	c.LogLevel = "loud"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "admin_secret")
}

func TestRedactedConfig(t *testing.T) {
	c := Defaults()
	c.Settlement.AdminSecret = "top"
	c.Supabase.Password = "pw"
	c.Server.APIKey = "key"
	c.Kafka.Brokers = []string{"k1"}

	r := RedactedConfig(&c)
	assert.Equal(t, "***", r.Settlement.AdminSecret)
	assert.Equal(t, "***", r.Supabase.Password)
	assert.Equal(t, "***", r.Server.APIKey)
	assert.Empty(t, r.Redis.Password, "empty secrets stay empty")

	r.Kafka.Brokers[0] = "changed"
	assert.Equal(t, "k1", c.Kafka.Brokers[0])
	assert.Equal(t, "top", c.Settlement.AdminSecret)
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)

	def := Defaults()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Server.RateWindow, cfg.Server.RateWindow)
	assert.Equal(t, def.Storage, cfg.Storage)
	assert.Equal(t, def.Auction.HistoryLimit, cfg.Auction.HistoryLimit)
	assert.True(t, def.Auction.StartPrice.Equal(cfg.Auction.StartPrice))
	assert.True(t, def.Settlement.FeeRate.Equal(cfg.Settlement.FeeRate))
	assert.Equal(t, def.Settlement.PlatformWallet, cfg.Settlement.PlatformWallet)
	assert.Equal(t, def.Settlement.PayoutRetryAfter, cfg.Settlement.PayoutRetryAfter)
	assert.Equal(t, def.Kafka.Topic, cfg.Kafka.Topic)

	// The example ships without an admin secret.
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_secret")
}
