package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ledgerd/internal/auction"
	"github.com/alanyoungcy/ledgerd/internal/crypto"
	"github.com/alanyoungcy/ledgerd/internal/events"
	"github.com/alanyoungcy/ledgerd/internal/ledger"
	"github.com/alanyoungcy/ledgerd/internal/server"
	"github.com/alanyoungcy/ledgerd/internal/server/handler"
	"github.com/alanyoungcy/ledgerd/internal/server/ws"
	"github.com/alanyoungcy/ledgerd/internal/settlement"
)

// ServerMode serves the HTTP API and the live WebSocket feed until ctx is
// cancelled, then drains in-flight requests within the shutdown timeout.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	l := ledger.New(deps.Documents, ledger.Options{
		MaxRetries: a.cfg.Storage.MaxRetries,
		Locks:      deps.LockManager,
		LockTTL:    a.cfg.Storage.LockTTL.Duration,
		Logger:     a.logger,
	})

	auctionOpts := []auction.Option{auction.WithLogger(a.logger)}
	if deps.BidArchive != nil {
		auctionOpts = append(auctionOpts, auction.WithArchive(deps.BidArchive))
	}
	if deps.BidArchiveR != nil {
		auctionOpts = append(auctionOpts, auction.WithArchiveReader(deps.BidArchiveR))
	}
	if deps.Events != nil {
		auctionOpts = append(auctionOpts, auction.WithEvents(deps.Events))
	}
	if deps.AuditStore != nil {
		auctionOpts = append(auctionOpts, auction.WithAudit(deps.AuditStore))
	}
	auctionEngine := auction.NewEngine(l, auction.Config{
		AuctionID:          a.cfg.Auction.ID,
		StartPrice:         a.cfg.Auction.StartPrice,
		DefaultTaunt:       a.cfg.Auction.DefaultTaunt,
		HistoryLimit:       a.cfg.Auction.HistoryLimit,
		DefaultHistoryPage: a.cfg.Auction.DefaultHistoryPage,
		MaxTauntLength:     a.cfg.Auction.MaxTauntLength,
	}, auctionOpts...)

	settlementOpts := []settlement.Option{
		settlement.WithLogger(a.logger),
		settlement.WithPayoutSink(deps.Payouts),
	}
	if deps.Events != nil {
		settlementOpts = append(settlementOpts, settlement.WithEvents(deps.Events))
	}
	if deps.AuditStore != nil {
		settlementOpts = append(settlementOpts, settlement.WithAudit(deps.AuditStore))
	}
	settlementEngine := settlement.NewEngine(l, deps.AdminGate, settlement.Config{
		FeeRate:          a.cfg.Settlement.FeeRate,
		PlatformWallet:   a.cfg.Settlement.PlatformWallet,
		AmountPrecision:  int32(a.cfg.Settlement.AmountPrecision),
		PayoutRetryAfter: a.cfg.Settlement.PayoutRetryAfter.Duration,
	}, settlementOpts...)

	var verifier handler.SignatureVerifier
	if a.cfg.Server.VerifyWalletSignatures {
		verifier = crypto.NewWalletVerifier()
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus,
			[]string{events.ChannelAuction, events.ChannelMarket},
			a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
	} else {
		a.logger.WarnContext(ctx, "redis disabled; live feed at /ws is off")
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Auction:    handler.NewAuctionHandler(auctionEngine, verifier, a.logger),
		Prediction: handler.NewPredictionHandler(settlementEngine, verifier, a.logger),
	}, deps.RateLimiter, hub, a.logger)

	g.Go(func() error { return deps.Payouts.Run(ctx) })

	if deps.LocalLimiter != nil {
		g.Go(func() error { return deps.LocalLimiter.Run(ctx) })
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MigrateMode applies the embedded PostgreSQL migrations and exits.
func (a *App) MigrateMode(ctx context.Context) error {
	if a.cfg.Storage.Backend != "postgres" {
		return fmt.Errorf("app: migrate mode requires storage.backend = \"postgres\", got %q", a.cfg.Storage.Backend)
	}
	client, err := connectPostgres(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: postgres: %w", err)
	}
	defer client.Close()

	if err := client.RunMigrations(ctx); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}

// payoutsPageSize bounds each read of the payout stream.
const payoutsPageSize = 100

// PayoutsMode logs every payout instruction still held in the payout stream
// and exits. Operators use it to reconcile a market whose handoff failed.
func (a *App) PayoutsMode(ctx context.Context, deps *Dependencies) error {
	var (
		after = "0"
		total int
	)
	for {
		page, next, err := deps.Payouts.Queued(ctx, after, payoutsPageSize)
		if err != nil {
			return fmt.Errorf("app: payouts: %w", err)
		}
		for _, q := range page {
			a.logger.InfoContext(ctx, "queued payout",
				slog.String("stream_id", q.StreamID),
				slog.String("key", q.IdempotencyKey),
				slog.String("wallet", q.Wallet),
				slog.String("amount", q.Amount.String()),
				slog.Time("created_at", q.CreatedAt),
			)
		}
		total += len(page)
		if next == after {
			break
		}
		after = next
	}
	a.logger.InfoContext(ctx, "payout stream listed", slog.Int("instructions", total))
	return nil
}
