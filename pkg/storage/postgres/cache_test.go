package postgres

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/storage"
)

// countingStore wraps an in-memory product map and counts database reads.
type countingStore struct {
	products map[string]*catalog.Product
	idReads  int
}

func (s *countingStore) CreateProduct(_ context.Context, p *catalog.Product) error {
	s.products[p.ID] = p
	return nil
}

func (s *countingStore) ListProducts(_ context.Context, _, _ int) ([]*catalog.Product, error) {
	out := make([]*catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *countingStore) GetProductByID(_ context.Context, id string) (*catalog.Product, error) {
	s.idReads++
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func (s *countingStore) GetProductByTerm(_ context.Context, term string) (*catalog.Product, error) {
	for _, p := range s.products {
		if p.Slug == catalog.NormalizeSlug(term) {
			return p, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *countingStore) UpdateProduct(_ context.Context, p *catalog.Product, _ []string) error {
	if _, ok := s.products[p.ID]; !ok {
		return storage.ErrNotFound
	}
	s.products[p.ID] = p
	return nil
}

func (s *countingStore) DeleteProduct(_ context.Context, id string) error {
	if _, ok := s.products[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func newTestCache(t *testing.T, products ...*catalog.Product) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	inner := &countingStore{products: make(map[string]*catalog.Product)}
	for _, p := range products {
		inner.products[p.ID] = p
	}

	cfg := storage.DefaultConfig()
	cfg.RedisURL = mr.Addr()
	cfg.CacheTTL = time.Minute
	cfg.L1CacheSize = 16

	log := logrus.New()
	log.SetOutput(io.Discard)

	cached, err := NewCachedStore(inner, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { cached.Close() })
	return cached, inner, mr
}

func TestCachedGetByID(t *testing.T) {
	p := &catalog.Product{ID: "p-1", Title: "Plain Tee", Slug: "plain_tee", Price: 10}
	cached, inner, _ := newTestCache(t, p)

	got, err := cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "plain_tee", got.Slug)
	assert.Equal(t, 1, inner.idReads)

	// Second read served from cache.
	got, err = cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "plain_tee", got.Slug)
	assert.Equal(t, 1, inner.idReads, "cache hit must not touch the database")
}

func TestCachedGetPrimesL1FromRedis(t *testing.T) {
	p := &catalog.Product{ID: "p-1", Title: "Plain Tee", Slug: "plain_tee"}
	cached, inner, _ := newTestCache(t, p)

	_, err := cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)

	// Drop L1 only; the entry survives in Redis.
	cached.l1.Purge()

	_, err = cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.idReads, "L2 hit must not touch the database")

	// And the L2 hit re-primed L1.
	_, ok := cached.l1.Get(idKey("p-1"))
	assert.True(t, ok)
}

func TestCacheMissLoadsAndStores(t *testing.T) {
	p := &catalog.Product{ID: "p-1", Title: "Plain Tee", Slug: "plain_tee"}
	cached, _, mr := newTestCache(t, p)

	_, err := cached.GetProductByTerm(context.Background(), "plain_tee")
	require.NoError(t, err)

	assert.True(t, mr.Exists(termKey("plain_tee")))
	ttl := mr.TTL(termKey("plain_tee"))
	assert.Greater(t, ttl, time.Duration(0), "cached entries carry a TTL")
}

func TestUpdateInvalidates(t *testing.T) {
	p := &catalog.Product{ID: "p-1", Title: "Plain Tee", Slug: "plain_tee", Price: 10}
	cached, inner, _ := newTestCache(t, p)

	_, err := cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)

	updated := *p
	updated.Price = 12
	require.NoError(t, cached.UpdateProduct(context.Background(), &updated, nil))

	got, err := cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Price, "stale entry invalidated on update")
	assert.Equal(t, 2, inner.idReads)
}

func TestDeleteInvalidatesIDKey(t *testing.T) {
	p := &catalog.Product{ID: "p-1", Title: "Plain Tee", Slug: "plain_tee"}
	cached, _, mr := newTestCache(t, p)

	_, err := cached.GetProductByID(context.Background(), "p-1")
	require.NoError(t, err)
	require.True(t, mr.Exists(idKey("p-1")))

	require.NoError(t, cached.DeleteProduct(context.Background(), "p-1"))
	assert.False(t, mr.Exists(idKey("p-1")))

	_, err = cached.GetProductByID(context.Background(), "p-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisDownFailsFast(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "127.0.0.1:1"

	log := logrus.New()
	log.SetOutput(io.Discard)

	_, err := NewCachedStore(&countingStore{products: map[string]*catalog.Product{}}, cfg, log)
	assert.Error(t, err)
}
