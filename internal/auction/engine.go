// Package auction implements a continuous single-asset auction: ownership
// passes to whoever bids strictly above the current price.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/domain"
	"github.com/alanyoungcy/ledgerd/internal/ledger"
)

// Config holds auction parameters.
type Config struct {
	AuctionID          string
	StartPrice         decimal.Decimal
	DefaultTaunt       string
	HistoryLimit       int
	DefaultHistoryPage int
	MaxTauntLength     int
}

// DefaultConfig returns the stock auction parameters.
func DefaultConfig() Config {
	return Config{
		AuctionID:          "main",
		StartPrice:         decimal.NewFromInt(1000),
		DefaultTaunt:       "Waiting for the first bidder",
		HistoryLimit:       100,
		DefaultHistoryPage: 20,
		MaxTauntLength:     100,
	}
}

// BidRequest is a request to outbid the current owner.
type BidRequest struct {
	Bidder      string
	Amount      decimal.Decimal
	Taunt       string
	TxSignature string
}

// Engine serves auction reads and bids. All writes for one auction go
// through the ledger's critical section for its key.
type Engine struct {
	cfg     Config
	key     string
	ledger  *ledger.Ledger
	now     func() time.Time
	archive domain.BidArchive
	reader  domain.BidArchiveReader
	events  domain.EventPublisher
	audit   domain.AuditStore
	logger  *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithArchive hands bids pruned from history to a.
func WithArchive(a domain.BidArchive) Option {
	return func(e *Engine) { e.archive = a }
}

// WithArchiveReader enables ListArchivedBids.
func WithArchiveReader(r domain.BidArchiveReader) Option {
	return func(e *Engine) { e.reader = r }
}

// WithEvents publishes a bid_accepted event for every accepted bid.
func WithEvents(p domain.EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithAudit records accepted bids in the audit log.
func WithAudit(a domain.AuditStore) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine. Zero-valued Config fields fall back to
// DefaultConfig.
func NewEngine(l *ledger.Ledger, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.AuctionID == "" {
		cfg.AuctionID = def.AuctionID
	}
	if !cfg.StartPrice.IsPositive() {
		cfg.StartPrice = def.StartPrice
	}
	if cfg.DefaultTaunt == "" {
		cfg.DefaultTaunt = def.DefaultTaunt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.DefaultHistoryPage <= 0 {
		cfg.DefaultHistoryPage = def.DefaultHistoryPage
	}
	if cfg.MaxTauntLength <= 0 {
		cfg.MaxTauntLength = def.MaxTauntLength
	}

	e := &Engine{
		cfg:    cfg,
		key:    "auction:" + cfg.AuctionID,
		ledger: l,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "auction", "auction_id", cfg.AuctionID)
	return e
}

// ID returns the auction id.
func (e *Engine) ID() string {
	return e.cfg.AuctionID
}

func (e *Engine) defaultDocument() domain.AuctionDocument {
	now := e.now().UTC()
	return domain.AuctionDocument{
		State: domain.AuctionState{
			CurrentPrice: e.cfg.StartPrice,
			StartPrice:   e.cfg.StartPrice,
			TauntMessage: e.cfg.DefaultTaunt,
			StartTime:    now,
			UpdatedAt:    now,
		},
		History: []domain.Bid{},
	}
}

func (e *Engine) load(ctx context.Context) (domain.AuctionDocument, error) {
	doc, exists, err := ledger.ReadJSON[domain.AuctionDocument](ctx, e.ledger, e.key)
	if err != nil {
		return domain.AuctionDocument{}, fmt.Errorf("auction: load: %w", err)
	}
	if !exists {
		return e.defaultDocument(), nil
	}
	return doc, nil
}

// GetState returns the current auction state. An auction nobody has bid on
// yet reports the default state; nothing is written.
func (e *Engine) GetState(ctx context.Context) (domain.AuctionState, error) {
	doc, err := e.load(ctx)
	if err != nil {
		return domain.AuctionState{}, err
	}
	state := doc.State
	if state.HasOwner() {
		if d := e.now().Sub(state.StartTime); d > 0 {
			state.OwnershipDuration = d
		}
	}
	return state, nil
}

// GetBidHistory returns up to limit bids, most recent first. limit <= 0
// selects the default page size.
func (e *Engine) GetBidHistory(ctx context.Context, limit int) ([]domain.Bid, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultHistoryPage
	}
	doc, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	if limit > len(doc.History) {
		limit = len(doc.History)
	}
	out := make([]domain.Bid, limit)
	copy(out, doc.History[:limit])
	return out, nil
}

// ErrArchiveUnavailable is returned by ListArchivedBids when no archive
// reader is configured.
var ErrArchiveUnavailable = errors.New("auction: bid archive not configured")

// ListArchivedBids returns bids that have been pruned from history.
func (e *Engine) ListArchivedBids(ctx context.Context, opts domain.ListOpts) ([]domain.ArchivedBid, error) {
	if e.reader == nil {
		return nil, ErrArchiveUnavailable
	}
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.DefaultHistoryPage
	}
	bids, err := e.reader.ListArchived(ctx, e.cfg.AuctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("auction: list archived bids: %w: %w", domain.ErrStorageFailure, err)
	}
	return bids, nil
}

func (e *Engine) validate(req BidRequest) error {
	if strings.TrimSpace(req.Bidder) == "" {
		return fmt.Errorf("auction: bidder is required: %w: %w", domain.ErrInvalidInput, domain.ErrInvalidBid)
	}
	if !req.Amount.IsPositive() {
		// Never above any current price, so it is a rejected bid as well.
		return fmt.Errorf("auction: amount must be positive, got %s: %w: %w", req.Amount, domain.ErrInvalidInput, domain.ErrInvalidBid)
	}
	if n := utf8.RuneCountInString(req.Taunt); n > e.cfg.MaxTauntLength {
		return fmt.Errorf("auction: taunt is %d characters, limit %d: %w", n, e.cfg.MaxTauntLength, domain.ErrInvalidInput)
	}
	return nil
}

// PlaceBid accepts req if its amount is strictly greater than the current
// price. A request carrying the transaction signature of a bid already in
// history, or in the archive when a reader is configured, returns that bid
// without writing.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (domain.Bid, error) {
	req.Bidder = strings.TrimSpace(req.Bidder)
	if err := e.validate(req); err != nil {
		return domain.Bid{}, err
	}

	var (
		bid       domain.Bid
		pruned    []domain.Bid
		duplicate bool
	)
	err := ledger.UpdateJSON(ctx, e.ledger, e.key, func(doc *domain.AuctionDocument, exists bool) error {
		bid, pruned, duplicate = domain.Bid{}, nil, false
		if !exists {
			*doc = e.defaultDocument()
		}

		if req.TxSignature != "" {
			for _, b := range doc.History {
				if b.TransactionSignature == req.TxSignature {
					bid, duplicate = b, true
					return ledger.ErrSkipWrite
				}
			}
			if e.reader != nil {
				archived, found, err := e.reader.FindBySignature(ctx, e.cfg.AuctionID, req.TxSignature)
				if err != nil {
					return fmt.Errorf("auction: check archived signature: %w: %w", domain.ErrStorageFailure, err)
				}
				if found {
					bid, duplicate = archived.Bid, true
					return ledger.ErrSkipWrite
				}
			}
		}

		if req.Amount.LessThanOrEqual(doc.State.CurrentPrice) {
			return fmt.Errorf("auction: bid %s must exceed current price %s: %w",
				req.Amount, doc.State.CurrentPrice, domain.ErrInvalidBid)
		}

		now := e.now().UTC()
		bid = domain.Bid{
			ID:                   newBidID(now),
			Bidder:               req.Bidder,
			Amount:               req.Amount,
			Taunt:                req.Taunt,
			Timestamp:            now,
			TransactionSignature: req.TxSignature,
		}

		history := make([]domain.Bid, 0, len(doc.History)+1)
		history = append(history, bid)
		history = append(history, doc.History...)
		if len(history) > e.cfg.HistoryLimit {
			pruned = history[e.cfg.HistoryLimit:]
			history = history[:e.cfg.HistoryLimit]
		}
		doc.History = history

		taunt := req.Taunt
		if taunt == "" {
			taunt = doc.State.TauntMessage
		}
		doc.State = domain.AuctionState{
			CurrentPrice:  req.Amount,
			StartPrice:    doc.State.StartPrice,
			HighestBidder: req.Bidder,
			Owner:         req.Bidder,
			TauntMessage:  taunt,
			StartTime:     now,
			UpdatedAt:     now,
		}
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}
	if duplicate {
		e.logger.InfoContext(ctx, "bid already recorded", slog.String("bid_id", bid.ID))
		return bid, nil
	}

	e.afterCommit(ctx, bid, pruned)
	return bid, nil
}

// afterCommit runs side effects of an accepted bid. Failures are logged;
// the bid itself is already durable.
func (e *Engine) afterCommit(ctx context.Context, bid domain.Bid, pruned []domain.Bid) {
	e.logger.InfoContext(ctx, "bid accepted",
		slog.String("bid_id", bid.ID),
		slog.String("bidder", bid.Bidder),
		slog.String("amount", bid.Amount.String()),
	)

	if len(pruned) > 0 && e.archive != nil {
		if err := e.archive.Archive(ctx, e.cfg.AuctionID, pruned); err != nil {
			e.logger.WarnContext(ctx, "archive pruned bids failed",
				slog.Int("count", len(pruned)),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.events != nil {
		ev, err := domain.NewEvent(domain.EventBidAccepted, e.cfg.AuctionID, bid, bid.Timestamp)
		if err == nil {
			err = e.events.Publish(ctx, ev)
		}
		if err != nil {
			e.logger.WarnContext(ctx, "publish bid event failed", slog.String("error", err.Error()))
		}
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, domain.EventBidAccepted, map[string]any{
			"auctionId": e.cfg.AuctionID,
			"bidId":     bid.ID,
			"bidder":    bid.Bidder,
			"amount":    bid.Amount.String(),
		}); err != nil {
			e.logger.WarnContext(ctx, "audit bid failed", slog.String("error", err.Error()))
		}
	}
}

// newBidID returns "<unix millis>-<9 random hex chars>".
func newBidID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + suffix
}
