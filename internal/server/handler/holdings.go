package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakestore/stakestore/internal/domain"
)

// HoldingsService scans on-chain PT balances for an owner.
type HoldingsService interface {
	Holdings(ctx context.Context, owner string) ([]domain.Holding, error)
}

// HoldingsHandler serves the holdings endpoint.
type HoldingsHandler struct {
	holdings HoldingsService
	logger   *slog.Logger
}

// NewHoldingsHandler creates a HoldingsHandler with the given service.
func NewHoldingsHandler(holdings HoldingsService, logger *slog.Logger) *HoldingsHandler {
	return &HoldingsHandler{
		holdings: holdings,
		logger:   logger,
	}
}

// listHoldingsResponse wraps the holdings response.
type listHoldingsResponse struct {
	Owner    string           `json:"owner"`
	Holdings []domain.Holding `json:"holdings"`
}

// ListHoldings scans every catalog market for the owner's PT balance and
// returns the non-zero positions, sorted by expiry.
// GET /api/holdings/{address}
func (h *HoldingsHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "address")
	if !common.IsHexAddress(owner) {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	holdings, err := h.holdings.Holdings(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list holdings failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to scan holdings")
		return
	}

	if holdings == nil {
		holdings = []domain.Holding{}
	}

	writeJSON(w, http.StatusOK, listHoldingsResponse{
		Owner:    owner,
		Holdings: holdings,
	})
}
