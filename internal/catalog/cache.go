package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for product lookups. Receipts and
// issues hammer product reads; a short TTL keeps them off Postgres without
// risking stale thresholds for long.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}

// FetchProduct loads a cached product or populates it using the loader.
// A nil cache degrades to calling the loader directly.
func (c *Cache) FetchProduct(ctx context.Context, id int64, loader func(context.Context) (*Product, error)) (*Product, error) {
	if loader == nil {
		return nil, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	raw, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var product Product
		if err := json.Unmarshal(raw, &product); err == nil {
			return &product, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	product, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(product); err == nil {
		c.client.Set(ctx, productKey(id), data, c.ttl)
	}
	return product, nil
}

// Invalidate drops the cached product after a write.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, productKey(id))
}
