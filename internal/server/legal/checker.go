// Package legal validates legal tags and data-residency country codes.
package legal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
)

// Checker is the legal/compliance collaborator used by the pipeline.
type Checker interface {
	ValidateLegalTags(ctx context.Context, tags []string) error
	ValidateCountries(ctx context.Context, codes []string) error
}

// Source answers single lookups. It is typically remote and slow.
type Source interface {
	IsValidTag(ctx context.Context, tag string) (bool, error)
	IsValidCountry(ctx context.Context, code string) (bool, error)
}

// Cache holds lookup results for a bounded time. It is created by the caller
// and handed to the checker; nothing in this package keeps global state.
type Cache struct {
	lru *expirable.LRU[string, bool]
}

func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}
}

func (c *Cache) get(key string) (bool, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		metrics.LegalCacheHits.Inc()
	} else {
		metrics.LegalCacheMisses.Inc()
	}
	return v, ok
}

func (c *Cache) add(key string, valid bool) {
	c.lru.Add(key, valid)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// CachedChecker validates through a Source, memoizing answers in a Cache.
type CachedChecker struct {
	source Source
	cache  *Cache
}

func NewCachedChecker(source Source, cache *Cache) *CachedChecker {
	return &CachedChecker{source: source, cache: cache}
}

func (c *CachedChecker) ValidateLegalTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one legal tag is required", common.ErrInvalidLegal)
	}
	for _, tag := range tags {
		ok, err := c.lookup(ctx, "tag:"+tag, func(ctx context.Context) (bool, error) {
			return c.source.IsValidTag(ctx, tag)
		})
		if err != nil {
			return fmt.Errorf("legal tag lookup: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: invalid legal tag %q", common.ErrInvalidLegal, tag)
		}
	}
	return nil
}

func (c *CachedChecker) ValidateCountries(ctx context.Context, codes []string) error {
	for _, code := range codes {
		code = strings.ToUpper(code)
		ok, err := c.lookup(ctx, "country:"+code, func(ctx context.Context) (bool, error) {
			return c.source.IsValidCountry(ctx, code)
		})
		if err != nil {
			return fmt.Errorf("country lookup: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: invalid country code %q", common.ErrInvalidLegal, code)
		}
	}
	return nil
}

// lookup only caches definite answers; source errors are retried next time.
func (c *CachedChecker) lookup(ctx context.Context, key string, fetch func(context.Context) (bool, error)) (bool, error) {
	if v, ok := c.cache.get(key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return false, err
	}
	c.cache.add(key, v)
	return v, nil
}
