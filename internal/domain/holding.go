package domain

import (
	"math/big"
	"time"
)

// Holding is a non-zero principal-token balance held by an owner in one
// market. Holdings are derived from on-chain reads, never stored.
type Holding struct {
	MarketAddress string    `json:"market_address"`
	MarketName    string    `json:"market_name"`
	PtToken       string    `json:"pt_token"`
	Owner         string    `json:"owner"`
	Balance       *big.Int  `json:"balance"`
	Expiry        time.Time `json:"expiry"`
}
