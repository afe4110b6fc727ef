package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agentuity/go-cache/memcache"
)

type memcachedBackend struct {
	pool *memcache.ClientPool
	cfg  config
}

var _ Backend = (*memcachedBackend)(nil)

// NewMemcached returns a Backend over a pool of memcached clients. Every
// operation checks a client out of the pool for its duration only, so a
// small pool serves many concurrent callers while each underlying protocol
// client stays single-caller. Closing the backend closes the pool.
func NewMemcached(p *memcache.ClientPool, opts ...Option) Backend {
	return &memcachedBackend{
		pool: p,
		cfg:  applyOptions(opts),
	}
}

func (m *memcachedBackend) Get(ctx context.Context, key string) (any, error) {
	var out any = NoValue
	err := m.pool.With(ctx, func(c *memcache.Client) error {
		data, err := c.Get(m.cfg.prefixKey(key))
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memcachedBackend) GetMulti(ctx context.Context, keys []string) ([]any, error) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = m.cfg.prefixKey(key)
	}
	out := make([]any, len(keys))
	err := m.pool.With(ctx, func(c *memcache.Client) error {
		values, err := c.GetMulti(prefixed)
		if err != nil {
			return err
		}
		for i, key := range prefixed {
			if data, ok := values[key]; ok {
				out[i] = data
			} else {
				out[i] = NoValue
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memcachedBackend) Set(ctx context.Context, key string, value any) error {
	return m.SetMulti(ctx, map[string]any{key: value})
}

func (m *memcachedBackend) SetMulti(ctx context.Context, mapping map[string]any) error {
	encoded := make(map[string][]byte, len(mapping))
	for key, value := range mapping {
		data, err := msgpack.Marshal(value)
		if err != nil {
			return err
		}
		encoded[m.cfg.prefixKey(key)] = data
	}
	return m.pool.With(ctx, func(c *memcache.Client) error {
		for key, data := range encoded {
			if err := c.Set(key, data, m.cfg.expiration); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *memcachedBackend) Delete(ctx context.Context, key string) error {
	return m.pool.With(ctx, func(c *memcache.Client) error {
		err := c.Delete(m.cfg.prefixKey(key))
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		return err
	})
}

func (m *memcachedBackend) DeleteMulti(ctx context.Context, keys []string) error {
	return m.pool.With(ctx, func(c *memcache.Client) error {
		for _, key := range keys {
			err := c.Delete(m.cfg.prefixKey(key))
			if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
				return err
			}
		}
		return nil
	})
}

func (m *memcachedBackend) Close() error {
	m.pool.Close()
	if m.cfg.closer != nil {
		return m.cfg.closer()
	}
	return nil
}
