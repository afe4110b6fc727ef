// Package cache provides a pluggable caching layer with multiple backend
// implementations and a function-result memoization helper.
//
// # Backend Interface
//
// The [Backend] interface defines get/set/delete operations in single and
// batch forms. Nonexistent or expired keys yield the distinguished
// [NoValue] sentinel rather than an error, so a miss never has to be
// disambiguated from a failure. Batch gets preserve the order of the input
// key sequence.
//
// The interface uses [any] for values rather than generics because Go does
// not allow generic methods on interfaces. Type safety is provided by the
// package-level generic [Get] helper and by [Memoize].
//
// # Implementations
//
//   - [NewDict] — In-process map guarded by a mutex. Values are stored
//     as-is with no serialization. Expired entries are expunged lazily.
//     Lost on process restart.
//
//   - [NewRedis] — Backed by a Redis-compatible store via
//     [github.com/redis/go-redis/v9]. Works with plain and sentinel
//     (failover) clients through [redis.UniversalClient]. Values are
//     msgpack-encoded; expiry uses the store's native TTL. Each operation
//     uses a per-query timeout ([DefaultQueryTimeout]).
//
//   - [NewMemcached] — Backed by a memcached server set through a bounded
//     client pool. Each operation checks a client out of the pool for its
//     duration, so the unsynchronized protocol clients are never shared
//     between concurrent callers, and node outages observed by one client
//     propagate to the rest through the pool.
//
//   - [NewNull] — Stores nothing. The default when caching is disabled.
//
// # Memoization
//
// [Memoize] wraps a function so its results are cached per distinct
// argument list:
//
//	m := cache.NewMemoizer(backend, "users")
//	lookup := cache.Memoize(m, "by-id", fetchUser)
//	user, err := lookup(ctx, userID)
//
// Concurrent calls for the same key are collapsed via singleflight so the
// origin function runs once.
package cache
