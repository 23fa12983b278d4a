package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/stakestore/stakestore/internal/domain"
)

// RedemptionService builds unsigned redemption transactions for expired PT
// positions.
type RedemptionService interface {
	Build(ctx context.Context, marketAddr, receiver string, amountPt *big.Int) (domain.RedemptionTx, error)
}

// RedemptionHandler serves the redemption endpoint.
type RedemptionHandler struct {
	redemptions RedemptionService
	logger      *slog.Logger
}

// NewRedemptionHandler creates a RedemptionHandler with the given service.
func NewRedemptionHandler(redemptions RedemptionService, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		redemptions: redemptions,
		logger:      logger,
	}
}

// buildRedemptionRequest is the JSON body for POST /api/redemptions.
type buildRedemptionRequest struct {
	MarketAddress string `json:"market_address"`
	Receiver      string `json:"receiver"`
	AmountPt      string `json:"amount_pt"`
}

// BuildRedemption returns an unsigned transaction redeeming AmountPt of an
// expired market's principal token. The caller signs and submits it; this
// service never does.
// POST /api/redemptions
func (h *RedemptionHandler) BuildRedemption(w http.ResponseWriter, r *http.Request) {
	var body buildRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, ok := new(big.Int).SetString(body.AmountPt, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount_pt must be a base-10 integer string")
		return
	}

	tx, err := h.redemptions.Build(r.Context(), body.MarketAddress, body.Receiver, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		if errors.Is(err, domain.ErrNoRedemption) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: build redemption failed",
			slog.String("market_address", body.MarketAddress),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build redemption")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}
