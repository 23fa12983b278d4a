package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stakestore/stakestore/internal/domain"
)

// catalogTTL bounds how stale a cached snapshot may be served after a
// restart.
const catalogTTL = time.Hour

// catalogHashKey is the single hash holding the market snapshot, one field
// per market address.
const catalogHashKey = "catalog:markets"

// CatalogCache implements domain.CatalogCache using a Redis hash with
// JSON-serialized Market data.
//
// Key schema:
//
//	catalog:markets - hash, field {address} -> market JSON
type CatalogCache struct {
	rdb *redis.Client
}

// NewCatalogCache creates a CatalogCache backed by the given Client.
func NewCatalogCache(c *Client) *CatalogCache {
	return &CatalogCache{rdb: c.Underlying()}
}

// SetAll replaces the cached snapshot wholesale. Delete and repopulate run
// in one transaction so readers never observe a partial snapshot.
func (cc *CatalogCache) SetAll(ctx context.Context, markets []domain.Market) error {
	fields := make(map[string]any, len(markets))
	for _, m := range markets {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: marshal market %s: %w", m.Address, err)
		}
		fields[strings.ToLower(m.Address)] = data
	}

	pipe := cc.rdb.TxPipeline()
	pipe.Del(ctx, catalogHashKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, catalogHashKey, fields)
		pipe.Expire(ctx, catalogHashKey, catalogTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set catalog snapshot: %w", err)
	}
	return nil
}

// GetAll returns the cached snapshot. An absent key returns an empty slice,
// not an error.
func (cc *CatalogCache) GetAll(ctx context.Context) ([]domain.Market, error) {
	raw, err := cc.rdb.HGetAll(ctx, catalogHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get catalog snapshot: %w", err)
	}

	markets := make([]domain.Market, 0, len(raw))
	for addr, data := range raw {
		var m domain.Market
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("redis: unmarshal market %s: %w", addr, err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// Get retrieves one cached market by address. It returns domain.ErrNotFound
// when the field does not exist.
func (cc *CatalogCache) Get(ctx context.Context, address string) (domain.Market, error) {
	data, err := cc.rdb.HGet(ctx, catalogHashKey, strings.ToLower(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", address, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", address, err)
	}
	return m, nil
}

// Compile-time interface check.
var _ domain.CatalogCache = (*CatalogCache)(nil)
