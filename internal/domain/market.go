package domain

import "time"

// Market is a yield-tokenization market: an underlying asset split into a
// principal token (PT) and a yield token (YT) that both expire at a fixed
// maturity.
type Market struct {
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Expiry     time.Time `json:"expiry"`
	PtAddress  string    `json:"pt_address"`
	YtAddress  string    `json:"yt_address"`
	Underlying string    `json:"underlying"`
	ImpliedAPY float64   `json:"implied_apy"`
	ChainID    int64     `json:"chain_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Expired reports whether the market has passed maturity at the given time.
func (m Market) Expired(now time.Time) bool {
	return !m.Expiry.IsZero() && !now.Before(m.Expiry)
}
