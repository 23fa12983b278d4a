package feed

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stakestore/stakestore/internal/domain"
)

func newListener(t *testing.T) *IntentListener {
	t.Helper()
	sink := make(chan domain.StakeRequest, 1)
	l, err := NewIntentListener("ws://localhost:8546", "0x5555555555555555555555555555555555555555", 0.01, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func intentLog() types.Log {
	amount := big.NewInt(1_000_000)
	data := make([]byte, 32)
	amount.FillBytes(data)
	return types.Log{
		Topics: []common.Hash{
			common.HexToHash("0xaaaa"), // event signature, not checked by decode
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
			common.BytesToHash(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()),
			common.BytesToHash(common.HexToAddress("0x3333333333333333333333333333333333333333").Bytes()),
		},
		Data:   data,
		TxHash: common.HexToHash("0xdeadbeef"),
		Index:  3,
	}
}

func TestDecodeIntentLog(t *testing.T) {
	l := newListener(t)

	req, err := l.decode(intentLog())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.UserAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("user = %s", req.UserAddress)
	}
	if req.InputToken != "0x2222222222222222222222222222222222222222" {
		t.Errorf("token = %s", req.InputToken)
	}
	if req.MarketAddress != "0x3333333333333333333333333333333333333333" {
		t.Errorf("market = %s", req.MarketAddress)
	}
	if req.InputAmount.Int64() != 1_000_000 {
		t.Errorf("amount = %s", req.InputAmount)
	}
	if req.Slippage != 0.01 {
		t.Errorf("slippage = %v", req.Slippage)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("decoded request fails validation: %v", err)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	l := newListener(t)

	a, err := l.decode(intentLog())
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.decode(intentLog())
	if err != nil {
		t.Fatal(err)
	}
	if a.RequestID != b.RequestID {
		t.Errorf("request ids differ: %s vs %s", a.RequestID, b.RequestID)
	}
	if a.RequestID == "" {
		t.Error("request id empty")
	}
}

func TestDecodeRejectsMalformedLogs(t *testing.T) {
	l := newListener(t)

	short := intentLog()
	short.Topics = short.Topics[:2]
	if _, err := l.decode(short); err == nil {
		t.Error("expected error for missing topics")
	}

	badData := intentLog()
	badData.Data = []byte{0x01, 0x02}
	if _, err := l.decode(badData); err == nil {
		t.Error("expected error for short data")
	}

	zero := intentLog()
	zero.Data = make([]byte, 32)
	if _, err := l.decode(zero); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestNewIntentListenerRejectsBadContract(t *testing.T) {
	sink := make(chan domain.StakeRequest)
	if _, err := NewIntentListener("ws://x", "not-an-address", 0.01, sink, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for invalid contract address")
	}
}
