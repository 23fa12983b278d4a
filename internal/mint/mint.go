// Package mint fetches and validates PT/YT mint quotes from the venue API.
package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// Quoter builds a mint transaction for a stake request.
type Quoter interface {
	MintQuote(ctx context.Context, market, receiver, tokenIn string, amountIn string, slippage float64) (domain.MintQuote, error)
}

// Coordinator fetches mint quotes with bounded retries. Quotes are always
// fetched fresh; they are never cached or reused across submissions.
type Coordinator struct {
	quoter   Quoter
	receiver string
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. receiver is the address PT/YT are
// delivered to (the operator wallet). retries is the number of additional
// attempts after the first failure.
func NewCoordinator(quoter Quoter, receiver string, retries int, backoff time.Duration, logger *slog.Logger) *Coordinator {
	if retries < 0 {
		retries = 0
	}
	return &Coordinator{
		quoter:   quoter,
		receiver: receiver,
		retries:  retries,
		backoff:  backoff,
		logger:   logger.With("component", "mint"),
	}
}

// Quote fetches a validated mint quote for req on market. Invalid quotes
// returned by the venue are retried like transport failures; the last error
// is returned when all attempts fail.
func (c *Coordinator) Quote(ctx context.Context, req domain.StakeRequest, market domain.Market) (domain.MintQuote, error) {
	if market.Expired(time.Now()) {
		return domain.MintQuote{}, fmt.Errorf("mint: market %s expired %s: %w",
			market.Address, market.Expiry.Format(time.RFC3339), domain.ErrInvalidRequest)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying mint quote",
				"request_id", req.RequestID,
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return domain.MintQuote{}, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		quote, err := c.quoter.MintQuote(ctx, market.Address, c.receiver, req.InputToken, req.InputAmount.String(), req.Slippage)
		if err != nil {
			lastErr = err
			continue
		}
		if err := quote.Validate(); err != nil {
			lastErr = err
			continue
		}

		c.logger.Info("mint quote fetched",
			"request_id", req.RequestID,
			"market", market.Address,
			"pt_out", quote.AmountPtOut.String(),
			"yt_out", quote.AmountYtOut.String(),
			"price_impact", quote.PriceImpact)
		return quote, nil
	}

	if !errors.Is(lastErr, domain.ErrInvalidQuote) {
		lastErr = fmt.Errorf("mint: quote for %s: %w", req.RequestID, lastErr)
	}
	return domain.MintQuote{}, lastErr
}
