package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MintQuote is routing calldata returned by the venue API for a PT/YT mint.
// It originates outside our trust boundary and must be validated before a
// transaction is built from it. Quotes are ephemeral: they are never cached
// or persisted.
type MintQuote struct {
	To          string   `json:"to"`
	Data        string   `json:"data"`
	Value       *big.Int `json:"value,omitempty"`
	AmountPtOut *big.Int `json:"amount_pt_out,omitempty"`
	AmountYtOut *big.Int `json:"amount_yt_out,omitempty"`
	PriceImpact float64  `json:"price_impact,omitempty"`
}

// Validate rejects quotes that cannot produce a well-formed transaction.
// All violations map to ErrInvalidQuote.
func (q MintQuote) Validate() error {
	if !common.IsHexAddress(q.To) {
		return fmt.Errorf("%w: tx target %q is not a valid address", ErrInvalidQuote, q.To)
	}
	if _, err := DecodeCalldata(q.Data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}
	return nil
}

// RedemptionTx is an unsigned transaction redeeming an expired PT position.
// It is returned to the caller for signing elsewhere; this service never
// signs or submits it.
type RedemptionTx struct {
	To        string   `json:"to"`
	Data      string   `json:"data"`
	Value     *big.Int `json:"value,omitempty"`
	AmountOut *big.Int `json:"amount_out,omitempty"`
}

// DecodeCalldata decodes a 0x-prefixed hex calldata string. Empty calldata
// is rejected: every mint and redeem is a contract call.
func DecodeCalldata(data string) ([]byte, error) {
	raw := strings.TrimPrefix(data, "0x")
	if raw == "" {
		return nil, fmt.Errorf("calldata is empty")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("calldata is not valid hex: %v", err)
	}
	return b, nil
}
