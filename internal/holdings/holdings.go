// Package holdings derives PT positions from on-chain balance reads across
// the market catalog. Nothing here is persisted; the chain is the source of
// truth.
package holdings

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stakestore/stakestore/internal/domain"
)

// MarketLister supplies the markets to scan.
type MarketLister interface {
	Markets() []domain.Market
}

// BalanceReader reads ERC-20 balances.
type BalanceReader interface {
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
}

// Tracker scans catalog markets for non-zero PT balances.
type Tracker struct {
	catalog     MarketLister
	reader      BalanceReader
	concurrency int
	logger      *slog.Logger
}

// NewTracker creates a Tracker that reads at most concurrency balances at a
// time.
func NewTracker(catalog MarketLister, reader BalanceReader, concurrency int, logger *slog.Logger) *Tracker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Tracker{
		catalog:     catalog,
		reader:      reader,
		concurrency: concurrency,
		logger:      logger.With("component", "holdings"),
	}
}

// Holdings returns owner's non-zero PT balances across all catalog markets,
// sorted by market expiry. Markets sharing a PT token are scanned once. A
// single failed balance read fails the whole scan; partial results are never
// returned.
func (t *Tracker) Holdings(ctx context.Context, owner string) ([]domain.Holding, error) {
	markets := t.catalog.Markets()

	// Dedupe by PT token; some markets roll over to a new expiry sharing
	// the same PT.
	seen := make(map[string]bool, len(markets))
	targets := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.PtAddress == "" || seen[m.PtAddress] {
			continue
		}
		seen[m.PtAddress] = true
		targets = append(targets, m)
	}

	var mu sync.Mutex
	out := make([]domain.Holding, 0, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, m := range targets {
		g.Go(func() error {
			bal, err := t.reader.TokenBalance(gctx, m.PtAddress, owner)
			if err != nil {
				return fmt.Errorf("holdings: balance of %s for %s: %w", m.PtAddress, owner, err)
			}
			if bal.Sign() <= 0 {
				return nil
			}
			mu.Lock()
			out = append(out, domain.Holding{
				MarketAddress: m.Address,
				MarketName:    m.Name,
				PtToken:       m.PtAddress,
				Owner:         owner,
				Balance:       bal,
				Expiry:        m.Expiry,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })

	t.logger.Debug("holdings scanned",
		"owner", owner,
		"markets", len(targets),
		"positions", len(out))
	return out, nil
}
