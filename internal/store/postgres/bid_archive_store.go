package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// BidArchiveStore keeps bids pruned from auction history in bid_archive.
type BidArchiveStore struct {
	db *sql.DB
}

// NewBidArchiveStore creates a BidArchiveStore.
func NewBidArchiveStore(db *sql.DB) *BidArchiveStore {
	return &BidArchiveStore{db: db}
}

// Archive inserts bids in one transaction. Bids already archived are
// ignored, so handing over the same batch twice is harmless.
func (s *BidArchiveStore) Archive(ctx context.Context, auctionID string, bids []domain.Bid) error {
	if len(bids) == 0 {
		return nil
	}

	const query = `INSERT INTO bid_archive
		(bid_id, auction_id, bidder, amount, taunt, transaction_signature, bid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (auction_id, bid_id) DO NOTHING`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: archive bids begin: %w", err)
	}
	for _, b := range bids {
		if _, err := tx.ExecContext(ctx, query,
			b.ID, auctionID, b.Bidder, b.Amount.String(), b.Taunt, b.TransactionSignature, b.Timestamp,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: archive bid %s: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: archive bids commit: %w", err)
	}
	return nil
}

// FindBySignature implements domain.BidArchiveReader.
func (s *BidArchiveStore) FindBySignature(ctx context.Context, auctionID, signature string) (domain.ArchivedBid, bool, error) {
	const query = `SELECT bid_id, bidder, amount, taunt, transaction_signature, bid_at, archived_at
		FROM bid_archive WHERE auction_id = $1 AND transaction_signature = $2
		ORDER BY bid_at LIMIT 1`

	a := domain.ArchivedBid{AuctionID: auctionID}
	var amount string
	err := s.db.QueryRowContext(ctx, query, auctionID, signature).Scan(&a.Bid.ID, &a.Bid.Bidder, &amount,
		&a.Bid.Taunt, &a.Bid.TransactionSignature, &a.Bid.Timestamp, &a.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ArchivedBid{}, false, nil
	}
	if err != nil {
		return domain.ArchivedBid{}, false, fmt.Errorf("postgres: find archived bid by signature: %w", err)
	}
	if a.Bid.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.ArchivedBid{}, false, fmt.Errorf("postgres: parse archived bid amount %q: %w", amount, err)
	}
	return a, true, nil
}

// ListArchived implements domain.BidArchiveReader.
func (s *BidArchiveStore) ListArchived(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.ArchivedBid, error) {
	query := `SELECT bid_id, bidder, amount, taunt, transaction_signature, bid_at, archived_at
		FROM bid_archive WHERE auction_id = $1`
	query, args := appendWindow(query, "bid_at", opts, auctionID)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list archived bids: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchivedBid
	for rows.Next() {
		a := domain.ArchivedBid{AuctionID: auctionID}
		var amount string
		if err := rows.Scan(&a.Bid.ID, &a.Bid.Bidder, &amount, &a.Bid.Taunt,
			&a.Bid.TransactionSignature, &a.Bid.Timestamp, &a.ArchivedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan archived bid: %w", err)
		}
		if a.Bid.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse archived bid amount %q: %w", amount, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list archived bids rows: %w", err)
	}
	return out, nil
}
