package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/storage"
)

// CachedStore wraps a catalog.Store with a two-level read cache: an in-process
// LRU in front of Redis. Only single-product lookups are cached; list pages
// change too often to be worth it. Writes delegate and invalidate. Staleness
// is bounded by the TTL: invalidation is best effort (a rename leaves the old
// title/slug keys to expire on their own).
type CachedStore struct {
	store catalog.Store
	l1    *lru.Cache[string, []byte]
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Logger
}

// NewCachedStore creates the cache layer. The Redis connection is verified at
// startup so a misconfigured cache fails fast rather than per request.
func NewCachedStore(store catalog.Store, cfg storage.Config, log *logrus.Logger) (*CachedStore, error) {
	l1, err := lru.New[string, []byte](cfg.L1CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	var client *redis.Client
	if strings.Contains(cfg.RedisURL, "://") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		store: store,
		l1:    l1,
		redis: client,
		ttl:   cfg.CacheTTL,
		log:   log,
	}, nil
}

// Redis exposes the client for health checks.
func (c *CachedStore) Redis() *redis.Client {
	return c.redis
}

// Close closes the Redis connection.
func (c *CachedStore) Close() error {
	return c.redis.Close()
}

func idKey(id string) string     { return "product:id:" + id }
func termKey(term string) string { return "product:term:" + strings.ToLower(term) }

// GetProductByID serves from cache when possible.
func (c *CachedStore) GetProductByID(ctx context.Context, id string) (*catalog.Product, error) {
	return c.cachedGet(ctx, idKey(id), func() (*catalog.Product, error) {
		return c.store.GetProductByID(ctx, id)
	})
}

// GetProductByTerm serves from cache when possible.
func (c *CachedStore) GetProductByTerm(ctx context.Context, term string) (*catalog.Product, error) {
	return c.cachedGet(ctx, termKey(term), func() (*catalog.Product, error) {
		return c.store.GetProductByTerm(ctx, term)
	})
}

// ListProducts always hits the database.
func (c *CachedStore) ListProducts(ctx context.Context, limit, offset int) ([]*catalog.Product, error) {
	return c.store.ListProducts(ctx, limit, offset)
}

// CreateProduct delegates and clears any stale keys for the new identifiers.
func (c *CachedStore) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if err := c.store.CreateProduct(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, productKeys(p)...)
	return nil
}

// UpdateProduct delegates and invalidates the product's cache entries.
func (c *CachedStore) UpdateProduct(ctx context.Context, p *catalog.Product, removedStorageIDs []string) error {
	if err := c.store.UpdateProduct(ctx, p, removedStorageIDs); err != nil {
		return err
	}
	c.invalidate(ctx, productKeys(p)...)
	return nil
}

// DeleteProduct delegates and invalidates by id; term keys for the deleted
// title and slug expire via TTL.
func (c *CachedStore) DeleteProduct(ctx context.Context, id string) error {
	if err := c.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, idKey(id))
	return nil
}

func (c *CachedStore) cachedGet(ctx context.Context, key string, load func() (*catalog.Product, error)) (*catalog.Product, error) {
	if data, ok := c.l1.Get(key); ok {
		if p := decodeProduct(data); p != nil {
			return p, nil
		}
	}

	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		if p := decodeProduct(data); p != nil {
			c.l1.Add(key, data)
			return p, nil
		}
	}

	p, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		c.l1.Add(key, data)
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.WithError(err).Debug("redis cache set failed")
		}
	}
	return p, nil
}

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		c.l1.Remove(key)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Debug("redis cache invalidation failed")
	}
}

func productKeys(p *catalog.Product) []string {
	return []string{idKey(p.ID), termKey(p.Title), termKey(p.Slug)}
}

func decodeProduct(data []byte) *catalog.Product {
	var p catalog.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}
