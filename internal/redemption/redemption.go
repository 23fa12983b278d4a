// Package redemption builds unsigned redemption transactions for mature PT
// positions. It never signs or submits; the caller executes the transaction
// out of band.
package redemption

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// MarketGetter resolves a market by address.
type MarketGetter interface {
	Get(address string) (domain.Market, error)
}

// RedeemQuoter builds a redemption transaction via the venue API.
type RedeemQuoter interface {
	RedeemTx(ctx context.Context, market, receiver, tokenOut string, amountPt string, slippage float64) (domain.RedemptionTx, error)
}

// Builder prepares redemption transactions.
type Builder struct {
	catalog  MarketGetter
	quoter   RedeemQuoter
	slippage float64
	logger   *slog.Logger
}

// NewBuilder creates a redemption Builder using slippage for venue quotes.
func NewBuilder(catalog MarketGetter, quoter RedeemQuoter, slippage float64, logger *slog.Logger) *Builder {
	return &Builder{
		catalog:  catalog,
		quoter:   quoter,
		slippage: slippage,
		logger:   logger.With("component", "redemption"),
	}
}

// Build returns an unsigned transaction redeeming amountPt of mature PT on
// marketAddr into the market's underlying token for receiver. A market that
// has not yet expired returns ErrNoRedemption.
func (b *Builder) Build(ctx context.Context, marketAddr, receiver string, amountPt *big.Int) (domain.RedemptionTx, error) {
	if amountPt == nil || amountPt.Sign() <= 0 {
		return domain.RedemptionTx{}, fmt.Errorf("redemption: amount must be positive: %w", domain.ErrInvalidRequest)
	}

	market, err := b.catalog.Get(marketAddr)
	if err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("redemption: resolving market %s: %w", marketAddr, err)
	}

	if !market.Expired(time.Now()) {
		return domain.RedemptionTx{}, fmt.Errorf("redemption: market %s matures %s: %w",
			market.Address, market.Expiry.Format(time.RFC3339), domain.ErrNoRedemption)
	}

	tx, err := b.quoter.RedeemTx(ctx, market.Address, receiver, market.Underlying, amountPt.String(), b.slippage)
	if err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("redemption: building tx for %s: %w", market.Address, err)
	}

	b.logger.Info("redemption built",
		"market", market.Address,
		"receiver", receiver,
		"amount_pt", amountPt.String(),
		"amount_out", tx.AmountOut.String())
	return tx, nil
}
