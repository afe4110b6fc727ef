package cache

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Memoizer caches function results in a Backend, keyed by call arguments.
// Concurrent calls for the same key are collapsed so the underlying
// function runs once while the others wait for its result.
type Memoizer struct {
	backend   Backend
	namespace string
	group     singleflight.Group
}

// NewMemoizer returns a Memoizer storing results in backend under the
// given key namespace.
func NewMemoizer(backend Backend, namespace string) *Memoizer {
	return &Memoizer{backend: backend, namespace: namespace}
}

// Memoize wraps fn so that its result is cached per distinct argument
// list. The cache key is derived from the namespace, name, and a digest of
// the msgpack-encoded arguments, so arguments must be msgpack-encodable.
// Errors from fn are never cached. A failure to store a computed result is
// swallowed: the caller still gets their value.
func Memoize[T any](m *Memoizer, name string, fn func(ctx context.Context, args ...any) (T, error)) func(ctx context.Context, args ...any) (T, error) {
	return func(ctx context.Context, args ...any) (T, error) {
		var zero T
		key, err := m.key(name, args)
		if err != nil {
			return zero, err
		}
		val, err := m.backend.Get(ctx, key)
		if err != nil {
			return zero, err
		}
		if typed, found, err := Decode[T](val); err != nil {
			return zero, err
		} else if found {
			return typed, nil
		}
		result, err, _ := m.group.Do(key, func() (any, error) {
			out, err := fn(ctx, args...)
			if err != nil {
				return nil, err
			}
			_ = m.backend.Set(ctx, key, out)
			return out, nil
		})
		if err != nil {
			return zero, err
		}
		return result.(T), nil
	}
}

// Invalidate drops the cached result for the given name and argument list.
func (m *Memoizer) Invalidate(ctx context.Context, name string, args ...any) error {
	key, err := m.key(name, args)
	if err != nil {
		return err
	}
	return m.backend.Delete(ctx, key)
}

func (m *Memoizer) key(name string, args []any) (string, error) {
	buf, err := msgpack.Marshal(args)
	if err != nil {
		return "", errors.Wrap(err, "cache: encoding memoization arguments")
	}
	return fmt.Sprintf("%s:%s:%016x", m.namespace, name, xxhash.Sum64(buf)), nil
}
