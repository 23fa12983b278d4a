package redemption

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

const receiver = "0x1111111111111111111111111111111111111111"

type fakeCatalog struct {
	market domain.Market
	err    error
}

func (f *fakeCatalog) Get(address string) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.market, nil
}

type fakeQuoter struct {
	tx    domain.RedemptionTx
	err   error
	calls int
}

func (f *fakeQuoter) RedeemTx(ctx context.Context, market, receiver, tokenOut string, amountPt string, slippage float64) (domain.RedemptionTx, error) {
	f.calls++
	if f.err != nil {
		return domain.RedemptionTx{}, f.err
	}
	return f.tx, nil
}

func matureMarket() domain.Market {
	return domain.Market{
		Address:    "0x3333333333333333333333333333333333333333",
		Underlying: "0x4444444444444444444444444444444444444444",
		Expiry:     time.Now().Add(-24 * time.Hour),
	}
}

func newBuilder(cat MarketGetter, q RedeemQuoter) *Builder {
	return NewBuilder(cat, q, 0.01, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildMatureMarket(t *testing.T) {
	q := &fakeQuoter{tx: domain.RedemptionTx{
		To:        "0x888888888889758F76e7103c6CbF23ABbF58F946",
		Data:      "0xabc123",
		Value:     big.NewInt(0),
		AmountOut: big.NewInt(1000),
	}}
	b := newBuilder(&fakeCatalog{market: matureMarket()}, q)

	tx, err := b.Build(context.Background(), matureMarket().Address, receiver, big.NewInt(1000))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.AmountOut.Int64() != 1000 {
		t.Errorf("amount out = %s", tx.AmountOut)
	}
	if q.calls != 1 {
		t.Errorf("quoter calls = %d, want 1", q.calls)
	}
}

func TestBuildRejectsUnexpiredMarket(t *testing.T) {
	m := matureMarket()
	m.Expiry = time.Now().Add(24 * time.Hour)
	q := &fakeQuoter{}
	b := newBuilder(&fakeCatalog{market: m}, q)

	_, err := b.Build(context.Background(), m.Address, receiver, big.NewInt(1))
	if !errors.Is(err, domain.ErrNoRedemption) {
		t.Fatalf("err = %v, want ErrNoRedemption", err)
	}
	if q.calls != 0 {
		t.Error("unexpired market must not reach the quoter")
	}
}

func TestBuildRejectsBadAmount(t *testing.T) {
	b := newBuilder(&fakeCatalog{market: matureMarket()}, &fakeQuoter{})

	for _, amt := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := b.Build(context.Background(), matureMarket().Address, receiver, amt); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("amount %v: err = %v, want ErrInvalidRequest", amt, err)
		}
	}
}

func TestBuildUnknownMarket(t *testing.T) {
	b := newBuilder(&fakeCatalog{err: domain.ErrNotFound}, &fakeQuoter{})

	_, err := b.Build(context.Background(), "0xdead", receiver, big.NewInt(1))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
