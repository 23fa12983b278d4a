package pendle

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// activeMarketsResponse wraps the market list endpoint payload.
type activeMarketsResponse struct {
	Markets []APIMarket `json:"markets"`
}

// APIMarket is the wire representation of one market. Token references use
// the API's "chainId-address" form, e.g. "8453-0xabc...".
type APIMarket struct {
	Address         string           `json:"address"`
	Name            string           `json:"name"`
	Expiry          string           `json:"expiry"`
	PT              string           `json:"pt"`
	YT              string           `json:"yt"`
	UnderlyingAsset string           `json:"underlyingAsset"`
	Details         APIMarketDetails `json:"details"`
}

// APIMarketDetails carries the yield metrics published alongside a market.
type APIMarketDetails struct {
	ImpliedAPY float64 `json:"impliedApy"`
	Liquidity  float64 `json:"liquidity"`
}

// ToDomainMarket converts the wire market to the domain type. chainID is the
// chain the catalog was fetched for; token references on other chains are
// rejected.
func (m *APIMarket) ToDomainMarket(chainID int64) (domain.Market, error) {
	expiry, err := time.Parse(time.RFC3339, m.Expiry)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pendle: parse expiry %q: %w", m.Expiry, err)
	}

	pt, err := splitTokenRef(m.PT, chainID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pendle: market %s pt: %w", m.Address, err)
	}
	yt, err := splitTokenRef(m.YT, chainID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pendle: market %s yt: %w", m.Address, err)
	}
	underlying, err := splitTokenRef(m.UnderlyingAsset, chainID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pendle: market %s underlying: %w", m.Address, err)
	}

	return domain.Market{
		Address:    strings.ToLower(m.Address),
		Name:       m.Name,
		Expiry:     expiry,
		PtAddress:  pt,
		YtAddress:  yt,
		Underlying: underlying,
		ImpliedAPY: m.Details.ImpliedAPY,
		ChainID:    chainID,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

// splitTokenRef parses a "chainId-address" token reference and returns the
// lowercased address.
func splitTokenRef(ref string, wantChainID int64) (string, error) {
	idx := strings.IndexByte(ref, '-')
	if idx < 0 {
		return "", fmt.Errorf("malformed token ref %q", ref)
	}
	var chainID int64
	if _, err := fmt.Sscanf(ref[:idx], "%d", &chainID); err != nil {
		return "", fmt.Errorf("malformed token ref %q: %w", ref, err)
	}
	if chainID != wantChainID {
		return "", fmt.Errorf("token ref %q is on chain %d, want %d", ref, chainID, wantChainID)
	}
	addr := ref[idx+1:]
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return "", fmt.Errorf("malformed token address in ref %q", ref)
	}
	return strings.ToLower(addr), nil
}

// sdkTxResponse is the payload of the SDK transaction-building endpoints.
type sdkTxResponse struct {
	Tx struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
	Data struct {
		AmountPtOut string  `json:"amountPtOut"`
		AmountYtOut string  `json:"amountYtOut"`
		AmountOut   string  `json:"amountOut"`
		PriceImpact float64 `json:"priceImpact"`
	} `json:"data"`
}

// ToMintQuote converts the SDK response into a validated mint quote.
func (r *sdkTxResponse) ToMintQuote() (domain.MintQuote, error) {
	value, err := parseWireAmount(r.Tx.Value)
	if err != nil {
		return domain.MintQuote{}, fmt.Errorf("pendle: quote value: %w", err)
	}
	ptOut, err := parseWireAmount(r.Data.AmountPtOut)
	if err != nil {
		return domain.MintQuote{}, fmt.Errorf("pendle: quote amountPtOut: %w", err)
	}
	ytOut, err := parseWireAmount(r.Data.AmountYtOut)
	if err != nil {
		return domain.MintQuote{}, fmt.Errorf("pendle: quote amountYtOut: %w", err)
	}

	q := domain.MintQuote{
		To:          r.Tx.To,
		Data:        r.Tx.Data,
		Value:       value,
		AmountPtOut: ptOut,
		AmountYtOut: ytOut,
		PriceImpact: r.Data.PriceImpact,
	}
	if err := q.Validate(); err != nil {
		return domain.MintQuote{}, err
	}
	return q, nil
}

// ToRedemptionTx converts the SDK response into a redemption transaction.
func (r *sdkTxResponse) ToRedemptionTx() (domain.RedemptionTx, error) {
	value, err := parseWireAmount(r.Tx.Value)
	if err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: redeem value: %w", err)
	}
	amountOut, err := parseWireAmount(r.Data.AmountOut)
	if err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: redeem amountOut: %w", err)
	}
	if r.Tx.To == "" {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: redeem tx missing target")
	}
	if _, err := domain.DecodeCalldata(r.Tx.Data); err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: redeem tx calldata: %w", err)
	}

	return domain.RedemptionTx{
		To:        r.Tx.To,
		Data:      r.Tx.Data,
		Value:     value,
		AmountOut: amountOut,
	}, nil
}

// parseWireAmount parses a decimal string amount. Empty and "0" both decode
// to zero.
func parseWireAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return n, nil
}
