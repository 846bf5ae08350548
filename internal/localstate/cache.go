package localstate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cacheKV fronts another backend with an in-memory TTL cache. Payloads are
// copied on the way in and out so callers never share slices with the cache.
type cacheKV struct {
	inner kv
	data  *gocache.Cache
}

func newCacheKV(inner kv, ttl time.Duration) *cacheKV {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cacheKV{
		inner: inner,
		data:  gocache.New(ttl, 2*ttl),
	}
}

func (c *cacheKV) get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.data.Get(key); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	b, err := c.inner.get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.data.Set(key, append([]byte(nil), b...), gocache.DefaultExpiration)
	return b, nil
}

func (c *cacheKV) put(ctx context.Context, key string, payload []byte) error {
	if err := c.inner.put(ctx, key, payload); err != nil {
		return err
	}
	c.data.Set(key, append([]byte(nil), payload...), gocache.DefaultExpiration)
	return nil
}

func (c *cacheKV) del(ctx context.Context, key string) error {
	c.data.Delete(key)
	return c.inner.del(ctx, key)
}

func (c *cacheKV) close() error {
	return c.inner.close()
}
