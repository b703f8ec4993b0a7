package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/ledgerd/internal/blob/s3"
	"github.com/alanyoungcy/ledgerd/internal/cache/local"
	"github.com/alanyoungcy/ledgerd/internal/cache/redis"
	"github.com/alanyoungcy/ledgerd/internal/config"
	"github.com/alanyoungcy/ledgerd/internal/crypto"
	"github.com/alanyoungcy/ledgerd/internal/domain"
	"github.com/alanyoungcy/ledgerd/internal/events"
	"github.com/alanyoungcy/ledgerd/internal/events/kafka"
	"github.com/alanyoungcy/ledgerd/internal/executor"
	"github.com/alanyoungcy/ledgerd/internal/notify"
	"github.com/alanyoungcy/ledgerd/internal/server/handler"
	"github.com/alanyoungcy/ledgerd/internal/store/file"
	"github.com/alanyoungcy/ledgerd/internal/store/memory"
	"github.com/alanyoungcy/ledgerd/internal/store/postgres"
)

// Dependencies bundles everything the server mode needs. Optional pieces
// are nil when their backend is disabled.
type Dependencies struct {
	// Storage
	Documents   domain.DocumentStore
	AuditStore  domain.AuditStore
	BidArchive  domain.BidArchive
	BidArchiveR domain.BidArchiveReader

	// Coordination
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter
	LocalLimiter *local.RateLimiter
	SignalBus    domain.SignalBus

	// Fan-out of committed events and payouts
	Events  domain.EventPublisher
	Payouts *executor.PayoutExecutor

	AdminGate    crypto.AdminGate
	HealthChecks map[string]handler.HealthCheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheckFunc{}}

	// --- Document store ---
	switch cfg.Storage.Backend {
	case "memory":
		logger.WarnContext(ctx, "using in-memory storage; state is lost on restart")
		deps.Documents = memory.NewDocumentStore()
	case "file":
		fs, err := file.NewDocumentStore(cfg.Storage.DataDir)
		if err != nil {
			return fail(fmt.Errorf("wire: file store: %w", err))
		}
		deps.Documents = fs
	case "postgres":
		pgClient, err := connectPostgres(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		deps.Documents = postgres.NewDocumentStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		if cfg.Auction.Archive == "postgres" {
			archive := postgres.NewBidArchiveStore(pgClient.DB())
			deps.BidArchive, deps.BidArchiveR = archive, archive
		}
		deps.HealthChecks["postgres"] = func(ctx context.Context) error {
			return pgClient.Pool().Ping(ctx)
		}
	default:
		return fail(fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend))
	}

	var publishers events.Fanout

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		if cfg.Storage.LockBackend == "redis" {
			deps.LockManager = redis.NewLockManager(redisClient, cfg.Storage.LockWait.Duration)
		}
		publishers = append(publishers, events.NewBusPublisher(deps.SignalBus))
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.LocalLimiter = local.NewRateLimiter()
		deps.RateLimiter = deps.LocalLimiter
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		objects := s3blob.NewObjects(s3Client)
		if cfg.Auction.Archive == "s3" {
			archive := s3blob.NewBidArchiver(objects, objects)
			deps.BidArchive, deps.BidArchiveR = archive, archive
		}
		if cfg.Settlement.Receipts {
			publishers = append(publishers, s3blob.NewReceiptPublisher(objects, objects))
		}
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = producer.Close() })
		publishers = append(publishers, producer)
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
	if len(senders) > 0 {
		publishers = append(publishers, notify.NewNotifier(senders, cfg.Notify.Events, logger))
	}

	if len(publishers) > 0 {
		deps.Events = publishers
	}
	deps.Payouts = executor.NewPayoutExecutor(deps.SignalBus, logger)

	// --- Admin gate ---
	secret, err := crypto.ResolveSecret(crypto.SecretSource{
		Raw:        cfg.Settlement.AdminSecret,
		SealedPath: cfg.Settlement.AdminSecretFile,
		Password:   cfg.Settlement.AdminSecretPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: admin secret: %w", err))
	}
	gate, err := crypto.NewAdminGate(secret, cfg.Settlement.AdminSecretHash)
	if err != nil {
		return fail(fmt.Errorf("wire: admin gate: %w", err))
	}
	deps.AdminGate = gate

	return deps, cleanup, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	return postgres.New(ctx, postgres.ClientConfig{
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
}
