package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

type fakeSource struct {
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeSource) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	f.calls++
	return f.markets, f.err
}

type fakeCache struct {
	stored []domain.Market
	setErr error
}

func (f *fakeCache) SetAll(ctx context.Context, markets []domain.Market) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.stored = markets
	return nil
}

func (f *fakeCache) GetAll(ctx context.Context) ([]domain.Market, error) {
	return f.stored, nil
}

func (f *fakeCache) Get(ctx context.Context, address string) (domain.Market, error) {
	for _, m := range f.stored {
		if m.Address == address {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarkets() []domain.Market {
	return []domain.Market{
		{Address: "0xbbbb", Name: "later", Expiry: time.Now().Add(60 * 24 * time.Hour)},
		{Address: "0xaaaa", Name: "sooner", Expiry: time.Now().Add(30 * 24 * time.Hour)},
	}
}

func TestRefreshAndGet(t *testing.T) {
	src := &fakeSource{markets: testMarkets()}
	cache := &fakeCache{}
	c := New(src, cache, testLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := c.Markets()
	if len(got) != 2 {
		t.Fatalf("markets = %d, want 2", len(got))
	}
	// Sorted by expiry ascending.
	if got[0].Name != "sooner" {
		t.Errorf("first market = %q, want sooner", got[0].Name)
	}

	// Case-insensitive lookup.
	if _, err := c.Get("0xAAAA"); err != nil {
		t.Errorf("Get upper-case: %v", err)
	}
	if _, err := c.Get("0xdead"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	// Snapshot mirrored to the cache.
	if len(cache.stored) != 2 {
		t.Errorf("cache stored %d markets, want 2", len(cache.stored))
	}
}

func TestRefreshKeepsSnapshotOnEmptyResult(t *testing.T) {
	src := &fakeSource{markets: testMarkets()}
	c := New(src, nil, testLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.markets = nil
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error for empty refresh")
	}
	if len(c.Markets()) != 2 {
		t.Error("empty refresh must not wipe the snapshot")
	}
}

func TestRefreshCacheFailureIsNonFatal(t *testing.T) {
	src := &fakeSource{markets: testMarkets()}
	cache := &fakeCache{setErr: errors.New("redis down")}
	c := New(src, cache, testLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh should tolerate cache failure, got: %v", err)
	}
	if len(c.Markets()) != 2 {
		t.Error("snapshot missing after cache failure")
	}
}

func TestWarmFromCache(t *testing.T) {
	cache := &fakeCache{stored: testMarkets()}
	c := New(&fakeSource{}, cache, testLogger())

	if err := c.WarmFromCache(context.Background()); err != nil {
		t.Fatalf("WarmFromCache: %v", err)
	}
	if len(c.Markets()) != 2 {
		t.Errorf("markets = %d, want 2", len(c.Markets()))
	}
	if c.LastRefreshed().IsZero() {
		t.Error("LastRefreshed should be set after warm")
	}
}

func TestWarmFromCacheMissIsNotError(t *testing.T) {
	c := New(&fakeSource{}, &fakeCache{}, testLogger())
	if err := c.WarmFromCache(context.Background()); err != nil {
		t.Fatalf("empty cache should not error: %v", err)
	}
	if len(c.Markets()) != 0 {
		t.Error("expected empty snapshot")
	}
}
