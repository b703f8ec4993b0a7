package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/auction"
	"github.com/alanyoungcy/ledgerd/internal/crypto"
	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// AuctionService is the subset of the auction engine the handler needs.
type AuctionService interface {
	GetState(ctx context.Context) (domain.AuctionState, error)
	PlaceBid(ctx context.Context, req auction.BidRequest) (domain.Bid, error)
	GetBidHistory(ctx context.Context, limit int) ([]domain.Bid, error)
	ListArchivedBids(ctx context.Context, opts domain.ListOpts) ([]domain.ArchivedBid, error)
}

// SignatureVerifier checks a wallet signature over a message.
type SignatureVerifier interface {
	Verify(address, message, signatureHex string) error
}

// WalletSignatureHeader carries the bidder's or bettor's signature when
// signature verification is enabled.
const WalletSignatureHeader = "X-Wallet-Signature"

// AuctionHandler serves the auction endpoints.
type AuctionHandler struct {
	auction  AuctionService
	verifier SignatureVerifier
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler. verifier may be nil, in which
// case bids are not signature-checked.
func NewAuctionHandler(svc AuctionService, verifier SignatureVerifier, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auction:  svc,
		verifier: verifier,
		logger:   logHandler(logger, "auction"),
	}
}

type auctionStateResponse struct {
	domain.AuctionState
	OwnershipDurationSeconds int64 `json:"ownershipDurationSeconds"`
}

// GetState returns the current auction state.
// GET /api/auction
func (h *AuctionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.auction.GetState(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get auction state", err)
		return
	}
	writeJSON(w, http.StatusOK, auctionStateResponse{
		AuctionState:             state,
		OwnershipDurationSeconds: int64(state.OwnershipDuration.Seconds()),
	})
}

type placeBidRequest struct {
	Bidder               string          `json:"bidder"`
	Amount               decimal.Decimal `json:"amount"`
	Taunt                string          `json:"taunt"`
	TransactionSignature string          `json:"transactionSignature"`
}

// PlaceBid submits a bid.
// POST /api/auction/bid
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.verifier != nil {
		msg := crypto.SignedMessage("bid", req.Bidder, req.Amount.String())
		if err := h.verifier.Verify(req.Bidder, msg, r.Header.Get(WalletSignatureHeader)); err != nil {
			h.logger.InfoContext(r.Context(), "bid signature rejected",
				slog.String("bidder", req.Bidder),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusForbidden, "invalid wallet signature")
			return
		}
	}

	bid, err := h.auction.PlaceBid(r.Context(), auction.BidRequest{
		Bidder:      req.Bidder,
		Amount:      req.Amount,
		Taunt:       req.Taunt,
		TxSignature: req.TransactionSignature,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

type bidHistoryResponse struct {
	Bids []domain.Bid `json:"bids"`
}

// GetBidHistory returns recent bids, newest first.
// GET /api/auction/history?limit=20
func (h *AuctionHandler) GetBidHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	bids, err := h.auction.GetBidHistory(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "get bid history", err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, bidHistoryResponse{Bids: bids})
}

type archivedBidsResponse struct {
	Bids []domain.ArchivedBid `json:"bids"`
}

// ListArchivedBids pages through bids pruned from history.
// GET /api/auction/history/archive?limit=20&offset=0
func (h *AuctionHandler) ListArchivedBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.auction.ListArchivedBids(r.Context(), parseListOpts(r))
	if errors.Is(err, auction.ErrArchiveUnavailable) {
		writeError(w, http.StatusNotImplemented, "bid archive is not enabled")
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list archived bids", err)
		return
	}
	if bids == nil {
		bids = []domain.ArchivedBid{}
	}
	writeJSON(w, http.StatusOK, archivedBidsResponse{Bids: bids})
}
