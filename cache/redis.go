package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisBackend struct {
	client redis.UniversalClient
	cfg    config
}

var _ Backend = (*redisBackend)(nil)

// NewRedis returns a Backend backed by a Redis-compatible store. Values are
// stored msgpack-encoded; Get returns the raw bytes for the generic [Get]
// helper to decode. The caller owns the client lifecycle unless a
// WithCloser option hands it over.
func NewRedis(client redis.UniversalClient, opts ...Option) Backend {
	return &redisBackend{
		client: client,
		cfg:    applyOptions(opts),
	}
}

func (r *redisBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.cfg.queryTimeout)
}

func (r *redisBackend) Get(ctx context.Context, key string) (any, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, r.cfg.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return NoValue, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *redisBackend) GetMulti(ctx context.Context, keys []string) ([]any, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.cfg.prefixKey(key)
	}
	values, err := r.client.MGet(qctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(keys))
	for i, val := range values {
		switch v := val.(type) {
		case nil:
			out[i] = NoValue
		case string:
			out[i] = []byte(v)
		case []byte:
			out[i] = v
		default:
			out[i] = NoValue
		}
	}
	return out, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value any) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Set(qctx, r.cfg.prefixKey(key), data, r.expiry()).Err()
}

func (r *redisBackend) SetMulti(ctx context.Context, mapping map[string]any) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	pipe := r.client.Pipeline()
	for key, value := range mapping {
		data, err := msgpack.Marshal(value)
		if err != nil {
			return err
		}
		pipe.Set(qctx, r.cfg.prefixKey(key), data, r.expiry())
	}
	_, err := pipe.Exec(qctx)
	return err
}

func (r *redisBackend) Delete(ctx context.Context, key string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Del(qctx, r.cfg.prefixKey(key)).Err()
}

func (r *redisBackend) DeleteMulti(ctx context.Context, keys []string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.cfg.prefixKey(key)
	}
	return r.client.Del(qctx, prefixed...).Err()
}

func (r *redisBackend) Close() error {
	if r.cfg.closer != nil {
		return r.cfg.closer()
	}
	return nil
}

func (r *redisBackend) expiry() time.Duration {
	if r.cfg.expiration > 0 {
		return r.cfg.expiration
	}
	return 0
}
