package chain

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
)

const (
	testSpender = "0x888888888889758F76e7103c6CbF23ABbF58F946"
	testOwner   = "0x1111111111111111111111111111111111111111"
)

func TestERC20ApproveData(t *testing.T) {
	data, err := ERC20ApproveData(testSpender, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("ERC20ApproveData: %v", err)
	}
	// 4-byte selector + two 32-byte words.
	if len(data) != 4+32+32 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	// approve(address,uint256) selector.
	if got := hex.EncodeToString(data[:4]); got != "095ea7b3" {
		t.Errorf("selector = %s, want 095ea7b3", got)
	}
	// Spender is right-aligned in the first argument word.
	if got := hex.EncodeToString(data[4:36]); !strings.HasSuffix(got, strings.ToLower(testSpender[2:])) {
		t.Errorf("spender word = %s", got)
	}
}

func TestERC20ApproveDataRejectsBadInput(t *testing.T) {
	if _, err := ERC20ApproveData("not-an-address", big.NewInt(1)); err == nil {
		t.Error("expected error for invalid spender")
	}
	if _, err := ERC20ApproveData(testSpender, nil); err == nil {
		t.Error("expected error for nil amount")
	}
	if _, err := ERC20ApproveData(testSpender, big.NewInt(-1)); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestPackBalanceOfAndAllowance(t *testing.T) {
	bal, err := packBalanceOf(testOwner)
	if err != nil {
		t.Fatalf("packBalanceOf: %v", err)
	}
	if got := hex.EncodeToString(bal[:4]); got != "70a08231" {
		t.Errorf("balanceOf selector = %s, want 70a08231", got)
	}

	alw, err := packAllowance(testOwner, testSpender)
	if err != nil {
		t.Fatalf("packAllowance: %v", err)
	}
	if got := hex.EncodeToString(alw[:4]); got != "dd62ed3e" {
		t.Errorf("allowance selector = %s, want dd62ed3e", got)
	}

	if _, err := packBalanceOf("0xzz"); err == nil {
		t.Error("expected error for invalid owner")
	}
}

func TestUnpackBigInt(t *testing.T) {
	word := make([]byte, 32)
	word[31] = 0x2a
	n, err := unpackBigInt("balanceOf", word)
	if err != nil {
		t.Fatalf("unpackBigInt: %v", err)
	}
	if n.Int64() != 42 {
		t.Errorf("value = %s, want 42", n)
	}

	if _, err := unpackBigInt("balanceOf", []byte{0x01}); err == nil {
		t.Error("expected error for short output")
	}
}
