package handler

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stakestore/stakestore/internal/domain"
)

type fakeRedemptionService struct {
	tx  domain.RedemptionTx
	err error
}

func (f *fakeRedemptionService) Build(ctx context.Context, marketAddr, receiver string, amountPt *big.Int) (domain.RedemptionTx, error) {
	return f.tx, f.err
}

func TestBuildRedemption(t *testing.T) {
	svc := &fakeRedemptionService{tx: domain.RedemptionTx{
		To:   testAddr,
		Data: "0xabcdef",
	}}
	h := NewRedemptionHandler(svc, testLogger())

	body := `{"market_address":"` + testAddr + `","receiver":"` + testAddr + `","amount_pt":"500"}`
	req := httptest.NewRequest(http.MethodPost, "/api/redemptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.BuildRedemption(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "0xabcdef") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBuildRedemptionNotMature(t *testing.T) {
	h := NewRedemptionHandler(&fakeRedemptionService{err: domain.ErrNoRedemption}, testLogger())

	body := `{"market_address":"` + testAddr + `","receiver":"` + testAddr + `","amount_pt":"500"}`
	req := httptest.NewRequest(http.MethodPost, "/api/redemptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.BuildRedemption(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestBuildRedemptionBadAmount(t *testing.T) {
	h := NewRedemptionHandler(&fakeRedemptionService{}, testLogger())

	body := `{"market_address":"` + testAddr + `","amount_pt":"zero"}`
	req := httptest.NewRequest(http.MethodPost, "/api/redemptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.BuildRedemption(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
