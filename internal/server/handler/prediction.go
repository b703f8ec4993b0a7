package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/crypto"
	"github.com/alanyoungcy/ledgerd/internal/domain"
	"github.com/alanyoungcy/ledgerd/internal/settlement"
)

// PredictionService is the subset of the settlement engine the handler needs.
type PredictionService interface {
	PlaceBet(ctx context.Context, req settlement.BetRequest) (domain.Bet, error)
	Distribute(ctx context.Context, req settlement.DistributeRequest) (domain.DistributionResult, error)
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
}

// AdminSecretHeader carries the admin credential for distribution.
const AdminSecretHeader = "X-Admin-Secret"

// PredictionHandler serves the prediction-market endpoints.
type PredictionHandler struct {
	markets  PredictionService
	verifier SignatureVerifier
	logger   *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler. verifier may be nil.
func NewPredictionHandler(svc PredictionService, verifier SignatureVerifier, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		markets:  svc,
		verifier: verifier,
		logger:   logHandler(logger, "prediction"),
	}
}

type placeBetRequest struct {
	WalletAddress string          `json:"walletAddress"`
	MarketID      string          `json:"marketId"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	Signature     string          `json:"signature"`
}

// PlaceBet records a bet.
// POST /api/prediction/bet
func (h *PredictionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.verifier != nil {
		msg := crypto.SignedMessage("bet", req.WalletAddress, req.Amount.String())
		if err := h.verifier.Verify(req.WalletAddress, msg, r.Header.Get(WalletSignatureHeader)); err != nil {
			h.logger.InfoContext(r.Context(), "bet signature rejected",
				slog.String("wallet", req.WalletAddress),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusForbidden, "invalid wallet signature")
			return
		}
	}

	bet, err := h.markets.PlaceBet(r.Context(), settlement.BetRequest{
		WalletAddress: req.WalletAddress,
		MarketID:      req.MarketID,
		Direction:     req.Direction,
		Amount:        req.Amount,
		Signature:     req.Signature,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

type distributeRequest struct {
	MarketID       string `json:"marketId"`
	WinningOutcome string `json:"winningOutcome"`
}

// Distribute settles a market. A repeat request answers 200 with the
// already-distributed result.
// POST /api/prediction/distribute
func (h *PredictionHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	credential := strings.TrimSpace(r.Header.Get(AdminSecretHeader))
	if credential == "" {
		credential = bearerToken(r)
	}

	var req distributeRequest
	if decodeErr := decodeJSON(w, r, &req); decodeErr != nil {
		// The credential is judged before the body: an empty request still
		// runs the gate and is rejected before any market is touched.
		_, err := h.markets.Distribute(r.Context(), settlement.DistributeRequest{Credential: credential})
		if errors.Is(err, domain.ErrUnauthorized) {
			writeServiceError(w, r, h.logger, "distribute", err)
			return
		}
		writeError(w, http.StatusBadRequest, decodeErr.Error())
		return
	}

	result, err := h.markets.Distribute(r.Context(), settlement.DistributeRequest{
		MarketID:       req.MarketID,
		WinningOutcome: req.WinningOutcome,
		Credential:     credential,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "distribute", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetMarket returns a market with its bets and any distributions.
// GET /api/prediction/markets/{id}
func (h *PredictionHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
