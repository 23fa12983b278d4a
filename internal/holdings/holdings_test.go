package holdings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

const owner = "0x1111111111111111111111111111111111111111"

type fakeCatalog struct {
	markets []domain.Market
}

func (f *fakeCatalog) Markets() []domain.Market { return f.markets }

type fakeReader struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	errs     map[string]error
	calls    map[string]int
}

func (f *fakeReader) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[token]++
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if bal, ok := f.balances[token]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestHoldingsFiltersZeroAndSorts(t *testing.T) {
	cat := &fakeCatalog{markets: []domain.Market{
		{Address: "0xm2", Name: "later", PtAddress: "0xpt2", Expiry: day(60)},
		{Address: "0xm1", Name: "sooner", PtAddress: "0xpt1", Expiry: day(30)},
		{Address: "0xm3", Name: "empty", PtAddress: "0xpt3", Expiry: day(10)},
	}}
	reader := &fakeReader{balances: map[string]*big.Int{
		"0xpt1": big.NewInt(500),
		"0xpt2": big.NewInt(900),
		"0xpt3": big.NewInt(0),
	}}
	tr := NewTracker(cat, reader, 4, testLogger())

	got, err := tr.Holdings(context.Background(), owner)
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("holdings = %d, want 2", len(got))
	}
	if got[0].MarketName != "sooner" || got[1].MarketName != "later" {
		t.Errorf("order = %s, %s; want sooner, later", got[0].MarketName, got[1].MarketName)
	}
	if got[0].Balance.Int64() != 500 {
		t.Errorf("balance = %s", got[0].Balance)
	}
}

func TestHoldingsDedupesSharedPtToken(t *testing.T) {
	cat := &fakeCatalog{markets: []domain.Market{
		{Address: "0xm1", PtAddress: "0xshared", Expiry: day(30)},
		{Address: "0xm2", PtAddress: "0xshared", Expiry: day(60)},
	}}
	reader := &fakeReader{balances: map[string]*big.Int{"0xshared": big.NewInt(10)}}
	tr := NewTracker(cat, reader, 2, testLogger())

	got, err := tr.Holdings(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if reader.calls["0xshared"] != 1 {
		t.Errorf("shared PT read %d times, want 1", reader.calls["0xshared"])
	}
	if len(got) != 1 {
		t.Errorf("holdings = %d, want 1", len(got))
	}
}

func TestHoldingsFailsOnReadError(t *testing.T) {
	cat := &fakeCatalog{markets: []domain.Market{
		{Address: "0xm1", PtAddress: "0xpt1", Expiry: day(30)},
		{Address: "0xm2", PtAddress: "0xpt2", Expiry: day(60)},
	}}
	reader := &fakeReader{
		balances: map[string]*big.Int{"0xpt1": big.NewInt(5)},
		errs:     map[string]error{"0xpt2": errors.New("rpc down")},
	}
	tr := NewTracker(cat, reader, 2, testLogger())

	if _, err := tr.Holdings(context.Background(), owner); err == nil {
		t.Fatal("expected error when a balance read fails")
	}
}

func TestHoldingsEmptyCatalog(t *testing.T) {
	tr := NewTracker(&fakeCatalog{}, &fakeReader{}, 2, testLogger())
	got, err := tr.Holdings(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("holdings = %d, want 0", len(got))
	}
}
