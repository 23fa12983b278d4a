package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

type fakeCatalog struct {
	markets   []domain.Market
	refreshed time.Time
}

func (f *fakeCatalog) Markets() []domain.Market { return f.markets }

func (f *fakeCatalog) Get(address string) (domain.Market, error) {
	for _, m := range f.markets {
		if m.Address == address {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeCatalog) LastRefreshed() time.Time { return f.refreshed }

func newMarketMux(h *MarketHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{address}", h.GetMarket)
	return mux
}

func TestListMarkets(t *testing.T) {
	cat := &fakeCatalog{
		markets:   []domain.Market{{Address: testAddr, Name: "PT-wstETH"}},
		refreshed: time.Now(),
	}
	mux := newMarketMux(NewMarketHandler(cat, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp listMarketsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Markets) != 1 {
		t.Errorf("total = %d, markets = %d", resp.Total, len(resp.Markets))
	}
}

func TestGetMarketNotFound(t *testing.T) {
	mux := newMarketMux(NewMarketHandler(&fakeCatalog{}, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/markets/0xdead", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
