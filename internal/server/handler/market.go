package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// MarketCatalog defines the catalog reads the market handler requires. The
// in-memory catalog satisfies it directly.
type MarketCatalog interface {
	Markets() []domain.Market
	Get(address string) (domain.Market, error)
	LastRefreshed() time.Time
}

// MarketHandler serves market catalog HTTP endpoints.
type MarketHandler struct {
	catalog MarketCatalog
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the given catalog.
func NewMarketHandler(catalog MarketCatalog, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets     []domain.Market `json:"markets"`
	Total       int             `json:"total"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// ListMarkets returns the current market snapshot, sorted by expiry.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.catalog.Markets()
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets:     markets,
		Total:       len(markets),
		RefreshedAt: h.catalog.LastRefreshed().UTC(),
	})
}

// GetMarket returns a single market by its address, case-insensitively.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing market address")
		return
	}

	market, err := h.catalog.Get(address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}
