package mint

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

type fakeQuoter struct {
	quotes []domain.MintQuote
	errs   []error
	calls  int
}

func (f *fakeQuoter) MintQuote(ctx context.Context, market, receiver, tokenIn string, amountIn string, slippage float64) (domain.MintQuote, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.MintQuote{}, f.errs[i]
	}
	if i < len(f.quotes) {
		return f.quotes[i], nil
	}
	return domain.MintQuote{}, errors.New("no scripted response")
}

func validQuote() domain.MintQuote {
	return domain.MintQuote{
		To:          "0x888888888889758F76e7103c6CbF23ABbF58F946",
		Data:        "0xabcdef",
		Value:       big.NewInt(0),
		AmountPtOut: big.NewInt(100),
		AmountYtOut: big.NewInt(100),
	}
}

func testRequest() domain.StakeRequest {
	return domain.StakeRequest{
		RequestID:     "req-1",
		UserAddress:   receiver,
		InputToken:    "0x2222222222222222222222222222222222222222",
		InputAmount:   big.NewInt(1000),
		MarketAddress: "0x3333333333333333333333333333333333333333",
		Slippage:      0.01,
	}
}

func testMarket() domain.Market {
	return domain.Market{
		Address: "0x3333333333333333333333333333333333333333",
		Expiry:  time.Now().Add(30 * 24 * time.Hour),
	}
}

func newCoordinator(q Quoter, retries int) *Coordinator {
	return NewCoordinator(q, receiver, retries, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQuoteHappyPath(t *testing.T) {
	q := &fakeQuoter{quotes: []domain.MintQuote{validQuote()}}
	c := newCoordinator(q, 1)

	quote, err := c.Quote(context.Background(), testRequest(), testMarket())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.AmountPtOut.Int64() != 100 {
		t.Errorf("pt out = %s", quote.AmountPtOut)
	}
	if q.calls != 1 {
		t.Errorf("calls = %d, want 1", q.calls)
	}
}

func TestQuoteRetriesOnTransportError(t *testing.T) {
	q := &fakeQuoter{
		errs:   []error{errors.New("timeout"), nil},
		quotes: []domain.MintQuote{{}, validQuote()},
	}
	c := newCoordinator(q, 1)

	if _, err := c.Quote(context.Background(), testRequest(), testMarket()); err != nil {
		t.Fatalf("Quote should succeed on retry: %v", err)
	}
	if q.calls != 2 {
		t.Errorf("calls = %d, want 2", q.calls)
	}
}

func TestQuoteExhaustsRetries(t *testing.T) {
	bad := validQuote()
	bad.Data = "" // fails validation
	q := &fakeQuoter{quotes: []domain.MintQuote{bad, bad}}
	c := newCoordinator(q, 1)

	_, err := c.Quote(context.Background(), testRequest(), testMarket())
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if !errors.Is(err, domain.ErrInvalidQuote) {
		t.Errorf("err = %v, want ErrInvalidQuote", err)
	}
	if q.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", q.calls)
	}
}

func TestQuoteRejectsExpiredMarket(t *testing.T) {
	q := &fakeQuoter{quotes: []domain.MintQuote{validQuote()}}
	c := newCoordinator(q, 0)

	market := testMarket()
	market.Expiry = time.Now().Add(-time.Hour)

	_, err := c.Quote(context.Background(), testRequest(), market)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if q.calls != 0 {
		t.Error("expired market must not reach the quoter")
	}
}

func TestQuoteZeroRetries(t *testing.T) {
	q := &fakeQuoter{errs: []error{errors.New("down")}}
	c := newCoordinator(q, 0)

	if _, err := c.Quote(context.Background(), testRequest(), testMarket()); err == nil {
		t.Fatal("expected error")
	}
	if q.calls != 1 {
		t.Errorf("calls = %d, want 1", q.calls)
	}
}
