package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type noValue struct{}

func (noValue) String() string { return "<no value>" }

// NoValue is the distinguished value returned for nonexistent or expired
// keys. It is a value, not an error: a miss is an expected outcome.
var NoValue noValue

// Backend is the pluggable storage contract. In-process implementations
// return stored values as-is; serialized implementations (Redis, pooled
// memcached) accept any value for Set and return raw msgpack []byte from
// Get. Use the generic [Get] helper to decode either form.
//
// All batch forms preserve the order of the input key sequence in the
// output value sequence.
type Backend interface {
	Get(ctx context.Context, key string) (any, error)
	GetMulti(ctx context.Context, keys []string) ([]any, error)
	Set(ctx context.Context, key string, value any) error
	SetMulti(ctx context.Context, mapping map[string]any) error
	Delete(ctx context.Context, key string) error
	DeleteMulti(ctx context.Context, keys []string) error
	Close() error
}

const (
	// DefaultExpiration is the TTL applied to stored values when
	// WithExpiration is not given.
	DefaultExpiration = 10 * time.Minute
	// DefaultQueryTimeout is the per-operation timeout for backends that
	// perform I/O. Prevents indefinite hangs on slow or unresponsive
	// storage.
	DefaultQueryTimeout = 5 * time.Second
)

// config holds the resolved configuration for a backend implementation.
type config struct {
	expiration   time.Duration
	queryTimeout time.Duration
	prefix       string
	closer       func() error
}

// Option configures a Backend implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		expiration:   DefaultExpiration,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithExpiration sets the TTL stamped on stored values. Zero or negative
// means values never expire. Defaults to DefaultExpiration.
func WithExpiration(d time.Duration) Option {
	return func(c *config) { c.expiration = d }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed backends.
// Defaults to DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithPrefix sets the key prefix for namespacing cache keys.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithCloser registers a function invoked by the backend's Close. Use it
// when the backend should own the lifecycle of a client that was created
// for it.
func WithCloser(fn func() error) Option {
	return func(c *config) { c.closer = fn }
}

func (c config) prefixKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get retrieves a typed value from a backend. For in-process backends it
// performs a direct type assertion; for serialized backends it decodes
// the stored msgpack bytes. The bool reports whether the key was found.
func Get[T any](ctx context.Context, b Backend, key string) (T, bool, error) {
	var zero T
	val, err := b.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	return Decode[T](val)
}

// Decode converts a value returned by a Backend into T. NoValue decodes to
// a miss.
func Decode[T any](val any) (T, bool, error) {
	var zero T
	if _, miss := val.(noValue); miss {
		return zero, false, nil
	}
	if typed, ok := val.(T); ok {
		return typed, true, nil
	}
	if data, ok := val.([]byte); ok {
		var out T
		if err := msgpack.Unmarshal(data, &out); err != nil {
			return zero, false, errors.Wrap(err, "cache: unmarshaling value")
		}
		return out, true, nil
	}
	return zero, false, fmt.Errorf("cache: cannot convert value of type %T to %T", val, zero)
}
