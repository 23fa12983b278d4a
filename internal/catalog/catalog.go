// Package catalog maintains an in-memory snapshot of stakeable markets,
// refreshed periodically from the venue API and mirrored to Redis so a
// restarted process can serve reads before its first refresh.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// MarketSource fetches the current market list from the venue.
type MarketSource interface {
	ActiveMarkets(ctx context.Context) ([]domain.Market, error)
}

// Catalog holds the current market snapshot. All methods are safe for
// concurrent use.
type Catalog struct {
	source MarketSource
	cache  domain.CatalogCache
	logger *slog.Logger

	mu        sync.RWMutex
	markets   []domain.Market
	byAddress map[string]domain.Market
	refreshed time.Time
}

// New creates a Catalog. cache may be nil, in which case snapshots are kept
// in memory only.
func New(source MarketSource, cache domain.CatalogCache, logger *slog.Logger) *Catalog {
	return &Catalog{
		source:    source,
		cache:     cache,
		logger:    logger.With("component", "catalog"),
		byAddress: make(map[string]domain.Market),
	}
}

// Refresh fetches the market list and replaces the snapshot wholesale. An
// empty result from the source is treated as an error so a flaky venue
// response cannot wipe a good snapshot.
func (c *Catalog) Refresh(ctx context.Context) error {
	markets, err := c.source.ActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("catalog: refresh: %w", err)
	}
	if len(markets) == 0 {
		return fmt.Errorf("catalog: refresh returned no markets")
	}

	c.swap(markets)

	if c.cache != nil {
		// Best effort; the in-memory snapshot is already current.
		if err := c.cache.SetAll(ctx, markets); err != nil {
			c.logger.Warn("caching catalog snapshot failed", "error", err)
		}
	}

	c.logger.Info("catalog refreshed", "markets", len(markets))
	return nil
}

// WarmFromCache loads the last cached snapshot. It is called once at startup
// so reads work before the first Refresh completes. A cache miss is not an
// error.
func (c *Catalog) WarmFromCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	markets, err := c.cache.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("catalog: warm from cache: %w", err)
	}
	if len(markets) == 0 {
		return nil
	}
	c.swap(markets)
	c.logger.Info("catalog warmed from cache", "markets", len(markets))
	return nil
}

// RunLoop refreshes the catalog on the given interval until ctx is
// cancelled. Refresh failures are logged and retried on the next tick; the
// previous snapshot keeps serving.
func (c *Catalog) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Error("initial catalog refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("catalog refresh failed", "error", err)
			}
		}
	}
}

// Markets returns a copy of the current snapshot sorted by expiry.
func (c *Catalog) Markets() []domain.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Market, len(c.markets))
	copy(out, c.markets)
	return out
}

// Get returns the market at address, or ErrNotFound. Lookup is
// case-insensitive.
func (c *Catalog) Get(address string) (domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.byAddress[strings.ToLower(address)]
	if !ok {
		return domain.Market{}, fmt.Errorf("catalog: market %s: %w", address, domain.ErrNotFound)
	}
	return m, nil
}

// LastRefreshed returns when the snapshot was last replaced; zero before the
// first successful refresh or cache warm.
func (c *Catalog) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

func (c *Catalog) swap(markets []domain.Market) {
	sorted := make([]domain.Market, len(markets))
	copy(sorted, markets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Expiry.Before(sorted[j].Expiry) })

	byAddr := make(map[string]domain.Market, len(sorted))
	for _, m := range sorted {
		byAddr[strings.ToLower(m.Address)] = m
	}

	c.mu.Lock()
	c.markets = sorted
	c.byAddress = byAddr
	c.refreshed = time.Now().UTC()
	c.mu.Unlock()
}
