package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stakestore/stakestore/internal/chain"
)

const (
	spender = "0x888888888889758F76e7103c6CbF23ABbF58F946"
	token   = "0x2222222222222222222222222222222222222222"
)

type fakeGateway struct {
	signer    string
	allowance *big.Int
	allowErr  error

	submitted []chain.TxRequest
	submitErr error

	receipt chain.Receipt
	mineErr error
}

func (f *fakeGateway) SignerAddress() string { return f.signer }

func (f *fakeGateway) Submit(ctx context.Context, req chain.TxRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "0xapprovetx", nil
}

func (f *fakeGateway) WaitMined(ctx context.Context, txHash string) (chain.Receipt, error) {
	if f.mineErr != nil {
		return chain.Receipt{}, f.mineErr
	}
	return f.receipt, nil
}

func (f *fakeGateway) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeGateway) TokenAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	return f.allowance, nil
}

func newManager(g *fakeGateway) *Manager {
	return NewManager(g, spender, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnsureAllowanceSufficientIsNoOp(t *testing.T) {
	g := &fakeGateway{signer: "0x1", allowance: big.NewInt(1000)}
	m := newManager(g)

	res, err := m.EnsureAllowance(context.Background(), token, big.NewInt(500))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if res.Approved || res.TxHash != "" {
		t.Errorf("expected no-op, got %+v", res)
	}
	if len(g.submitted) != 0 {
		t.Errorf("no transaction should be submitted, got %d", len(g.submitted))
	}
}

func TestEnsureAllowanceSubmitsApprove(t *testing.T) {
	g := &fakeGateway{
		signer:    "0x1",
		allowance: big.NewInt(0),
		receipt:   chain.Receipt{TxHash: "0xapprovetx", Success: true},
	}
	m := newManager(g)

	res, err := m.EnsureAllowance(context.Background(), token, big.NewInt(500))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if !res.Approved || res.TxHash != "0xapprovetx" {
		t.Errorf("result = %+v", res)
	}
	if len(g.submitted) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(g.submitted))
	}
	if g.submitted[0].To != token {
		t.Errorf("approve sent to %q, want token contract", g.submitted[0].To)
	}
}

func TestEnsureAllowanceRevertedApprove(t *testing.T) {
	g := &fakeGateway{
		signer:    "0x1",
		allowance: big.NewInt(0),
		receipt:   chain.Receipt{TxHash: "0xapprovetx", Success: false},
	}
	m := newManager(g)

	if _, err := m.EnsureAllowance(context.Background(), token, big.NewInt(500)); err == nil {
		t.Fatal("expected error for reverted approval")
	}
}

func TestEnsureAllowanceAllowanceCheckFails(t *testing.T) {
	g := &fakeGateway{signer: "0x1", allowErr: errors.New("rpc down")}
	m := newManager(g)

	if _, err := m.EnsureAllowance(context.Background(), token, big.NewInt(1)); err == nil {
		t.Fatal("expected error when allowance check fails")
	}
	if len(g.submitted) != 0 {
		t.Error("no transaction should be submitted when the check fails")
	}
}

func TestEnsureAllowanceNoSigner(t *testing.T) {
	m := newManager(&fakeGateway{signer: ""})
	if _, err := m.EnsureAllowance(context.Background(), token, big.NewInt(1)); err == nil {
		t.Fatal("expected error for read-only gateway")
	}
}
