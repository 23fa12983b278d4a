package pendle

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

func TestAPIMarketToDomainMarket(t *testing.T) {
	raw := `{
		"address": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"name": "cbETH 25 Dec 2026",
		"expiry": "2026-12-25T00:00:00Z",
		"pt": "8453-0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		"yt": "8453-0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC",
		"underlyingAsset": "8453-0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD",
		"details": {"impliedApy": 0.042, "liquidity": 1000000}
	}`
	var m APIMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}

	dm, err := m.ToDomainMarket(8453)
	if err != nil {
		t.Fatalf("ToDomainMarket: %v", err)
	}
	if dm.Address != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("address = %q, want lowercased", dm.Address)
	}
	if dm.PtAddress != "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("pt = %q", dm.PtAddress)
	}
	if dm.ImpliedAPY != 0.042 {
		t.Errorf("implied apy = %v", dm.ImpliedAPY)
	}
	wantExpiry := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	if !dm.Expiry.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", dm.Expiry, wantExpiry)
	}
	if dm.ChainID != 8453 {
		t.Errorf("chain id = %d, want 8453", dm.ChainID)
	}
}

func TestToDomainMarketRejectsWrongChain(t *testing.T) {
	m := APIMarket{
		Address:         "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Expiry:          "2026-12-25T00:00:00Z",
		PT:              "1-0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		YT:              "8453-0xcccccccccccccccccccccccccccccccccccccccc",
		UnderlyingAsset: "8453-0xdddddddddddddddddddddddddddddddddddddddd",
	}
	if _, err := m.ToDomainMarket(8453); err == nil {
		t.Fatal("expected error for token ref on the wrong chain")
	}
}

func TestSplitTokenRef(t *testing.T) {
	cases := []struct {
		ref     string
		wantErr bool
	}{
		{"8453-0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false},
		{"no-dash-but-bad-chain", true},
		{"8453", true},
		{"8453-nothex", true},
		{"1-0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", true},
	}
	for _, tc := range cases {
		_, err := splitTokenRef(tc.ref, 8453)
		if (err != nil) != tc.wantErr {
			t.Errorf("splitTokenRef(%q) err = %v, wantErr %v", tc.ref, err, tc.wantErr)
		}
	}
}

func TestSdkTxResponseToMintQuote(t *testing.T) {
	raw := `{
		"tx": {"to": "0x888888888889758F76e7103c6CbF23ABbF58F946", "data": "0x12abcd", "value": "0"},
		"data": {"amountPtOut": "995000000000000000", "amountYtOut": "995000000000000000", "priceImpact": 0.0004}
	}`
	var resp sdkTxResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatal(err)
	}

	q, err := resp.ToMintQuote()
	if err != nil {
		t.Fatalf("ToMintQuote: %v", err)
	}
	if q.AmountPtOut.String() != "995000000000000000" {
		t.Errorf("amountPtOut = %s", q.AmountPtOut)
	}
	if q.Value.Sign() != 0 {
		t.Errorf("value = %s, want 0", q.Value)
	}
}

func TestSdkTxResponseRejectsBadQuote(t *testing.T) {
	// Missing calldata must surface as an invalid quote.
	var resp sdkTxResponse
	resp.Tx.To = "0x888888888889758F76e7103c6CbF23ABbF58F946"
	resp.Tx.Data = ""
	resp.Data.AmountPtOut = "1"
	resp.Data.AmountYtOut = "1"

	_, err := resp.ToMintQuote()
	if err == nil {
		t.Fatal("expected error for empty calldata")
	}
	if !errors.Is(err, domain.ErrInvalidQuote) {
		t.Errorf("err = %v, want ErrInvalidQuote", err)
	}
}

func TestParseWireAmount(t *testing.T) {
	if n, err := parseWireAmount(""); err != nil || n.Sign() != 0 {
		t.Errorf("empty amount: n=%v err=%v", n, err)
	}
	if _, err := parseWireAmount("12x"); err == nil {
		t.Error("expected error for malformed amount")
	}
	if _, err := parseWireAmount("-5"); err == nil {
		t.Error("expected error for negative amount")
	}
}
