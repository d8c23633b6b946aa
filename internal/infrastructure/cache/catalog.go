package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
	"go.uber.org/zap"
)

// CachedCatalog wraps a CatalogStore and caches exact-name lookups and id lookups.
// The catalog changes only through imports, so entries live for the configured TTL.
// Cache failures are logged and the wrapped store answers instead.
type CachedCatalog struct {
	next   domain.CatalogStore
	cache  domain.CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog creates the decorator. A non-positive ttl defaults to one hour.
func NewCachedCatalog(next domain.CatalogStore, cache domain.CacheRepository, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{next: next, cache: cache, ttl: ttl, logger: logger}
}

// SearchByName serves exact-name lookups from the cache when possible.
// Empty results are not cached so records added by a later import are found at once.
func (c *CachedCatalog) SearchByName(ctx context.Context, name string) ([]domain.FoodRecord, error) {
	key := "catalog:name:" + foodname.StripWhitespace(name)

	var foods []domain.FoodRecord
	if c.load(ctx, key, &foods) {
		return foods, nil
	}

	foods, err := c.next.SearchByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(foods) > 0 {
		c.store(ctx, key, foods)
	}
	return foods, nil
}

// SearchCandidates is not cached; its filters rarely repeat
func (c *CachedCatalog) SearchCandidates(ctx context.Context, filter domain.CandidateFilter) ([]domain.FoodRecord, error) {
	return c.next.SearchCandidates(ctx, filter)
}

// GetByID serves id lookups from the cache when possible
func (c *CachedCatalog) GetByID(ctx context.Context, foodID string) (*domain.FoodRecord, error) {
	key := "catalog:id:" + foodID

	var food domain.FoodRecord
	if c.load(ctx, key, &food) {
		return &food, nil
	}

	got, err := c.next.GetByID(ctx, foodID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, got)
	return got, nil
}

func (c *CachedCatalog) load(ctx context.Context, key string, dst any) bool {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedCatalog) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
