package service

import (
	"context"
	"fmt"
	"time"

	"pys-backend/internal/pull"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = time.Hour
)

// SearchCache memoizes classification searches. It implements
// pull.Listener and is emptied after every successful pull.
type SearchCache struct {
	lru *expirable.LRU[string, []ClassificationMatch]
}

func NewSearchCache(size int, ttl time.Duration) *SearchCache {
	return &SearchCache{
		lru: expirable.NewLRU[string, []ClassificationMatch](size, nil, ttl),
	}
}

func cacheKey(query string, limit int) string {
	return fmt.Sprintf("%d:%s", limit, query)
}

func (c *SearchCache) get(query string, limit int) ([]ClassificationMatch, bool) {
	return c.lru.Get(cacheKey(query, limit))
}

func (c *SearchCache) add(query string, limit int, matches []ClassificationMatch) {
	c.lru.Add(cacheKey(query, limit), matches)
}

func (c *SearchCache) Len() int {
	return c.lru.Len()
}

func (c *SearchCache) Purge() {
	c.lru.Purge()
}

func (c *SearchCache) PullFinished(ctx context.Context, result pull.Result) error {
	if result.Status == pull.StatusSucceeded {
		c.Purge()
	}
	return nil
}
