package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/agentuity/go-cache/cache"
	"github.com/agentuity/go-cache/logger"
	"github.com/agentuity/go-cache/memcache"
	"github.com/agentuity/go-cache/pool"
)

// tlsClientConfig builds a tls.Config from the configured CA and client
// certificate files. Returns nil when TLS is not enabled.
func (o *Options) tlsClientConfig() (*tls.Config, error) {
	if !o.TLSEnabled {
		return nil, nil
	}
	cfg := &tls.Config{}
	if o.TLSCAFile != "" {
		pem, err := os.ReadFile(o.TLSCAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "config: reading CA file %s", o.TLSCAFile)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, errors.Wrapf(ErrConfiguration, "no certificates found in %s", o.TLSCAFile)
		}
		cfg.RootCAs = roots
	}
	if o.TLSCertFile != "" || o.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.TLSCertFile, o.TLSKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "config: loading client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if len(o.TLSAllowedCiphers) > 0 {
		suites, err := cipherSuiteIDs(o.TLSAllowedCiphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}
	return cfg, nil
}

func cipherSuiteIDs(names []string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		byName[suite.Name] = suite.ID
	}
	ids := make([]uint16, len(names))
	for i, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "unknown or insecure cipher suite %q", name)
		}
		ids[i] = id
	}
	return ids, nil
}

// MemcacheArgs translates the flat options into per-client arguments and
// pool sizing options for the memcache_pool backend.
func (o *Options) MemcacheArgs() (memcache.Args, []pool.Option, error) {
	tlsCfg, err := o.tlsClientConfig()
	if err != nil {
		return memcache.Args{}, nil, err
	}
	args := memcache.Args{
		DeadRetry:     o.MemcacheDeadRetry.Std(),
		SocketTimeout: o.MemcacheSocketTimeout.Std(),
		TLSConfig:     tlsCfg,
	}
	if o.MemcacheSASLEnabled {
		args.Username = o.MemcacheUsername
		args.Password = o.MemcachePassword
	}
	if o.EnableSocketKeepalive {
		args.KeepAlive = &net.KeepAliveConfig{
			Enable:   true,
			Idle:     o.SocketKeepaliveIdle.Std(),
			Interval: o.SocketKeepaliveInterval.Std(),
			Count:    o.SocketKeepaliveCount,
		}
	}
	opts := []pool.Option{
		pool.WithMaxSize(o.MemcachePoolMaxSize),
		pool.WithUnusedTimeout(o.MemcachePoolUnusedTimeout.Std()),
		pool.WithGetTimeout(o.MemcachePoolConnectionGetTimeout.Std()),
	}
	return args, opts, nil
}

// RedisOptions translates the flat options into go-redis client options
// for a single-server deployment.
func (o *Options) RedisOptions() (*redis.Options, error) {
	tlsCfg, err := o.tlsClientConfig()
	if err != nil {
		return nil, err
	}
	return &redis.Options{
		Addr:         o.RedisServer,
		Username:     o.RedisUsername,
		Password:     o.RedisPassword,
		DialTimeout:  o.RedisSocketTimeout.Std(),
		ReadTimeout:  o.RedisSocketTimeout.Std(),
		WriteTimeout: o.RedisSocketTimeout.Std(),
		TLSConfig:    tlsCfg,
	}, nil
}

// RedisFailoverOptions translates the flat options into go-redis failover
// options for a sentinel-managed deployment.
func (o *Options) RedisFailoverOptions() (*redis.FailoverOptions, error) {
	tlsCfg, err := o.tlsClientConfig()
	if err != nil {
		return nil, err
	}
	sentinels := make([]string, len(o.RedisSentinels))
	for i, sentinel := range o.RedisSentinels {
		addr, err := parseSentinel(sentinel)
		if err != nil {
			return nil, err
		}
		sentinels[i] = addr
	}
	return &redis.FailoverOptions{
		MasterName:    o.RedisSentinelServiceName,
		SentinelAddrs: sentinels,
		Username:      o.RedisUsername,
		Password:      o.RedisPassword,
		DialTimeout:   o.RedisSocketTimeout.Std(),
		ReadTimeout:   o.RedisSocketTimeout.Std(),
		WriteTimeout:  o.RedisSocketTimeout.Std(),
		TLSConfig:     tlsCfg,
	}, nil
}

// NewBackend constructs the configured cache backend. When caching is not
// enabled it returns the null backend so callers never have to branch on
// the toggle themselves. The returned backend owns any client or pool
// created here; its Close releases them.
func (o *Options) NewBackend(ctx context.Context, log logger.Logger) (cache.Backend, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if !o.Enabled {
		return cache.NewNull(), nil
	}

	expiration := cache.WithExpiration(o.ExpirationTime.Std())
	var backend cache.Backend
	switch o.Backend {
	case BackendNull:
		backend = cache.NewNull()

	case BackendDict:
		backend = cache.NewDict(expiration)

	case BackendMemcachePool:
		args, poolOpts, err := o.MemcacheArgs()
		if err != nil {
			return nil, err
		}
		p, err := memcache.NewPool(o.MemcacheServers, args, log, poolOpts...)
		if err != nil {
			return nil, err
		}
		backend = cache.NewMemcached(p, expiration)

	case BackendRedis:
		ropts, err := o.RedisOptions()
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "config: connecting to redis at %s", o.RedisServer)
		}
		backend = cache.NewRedis(client, expiration, cache.WithCloser(client.Close))

	case BackendRedisSentinel:
		fopts, err := o.RedisFailoverOptions()
		if err != nil {
			return nil, err
		}
		client := redis.NewFailoverClient(fopts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "config: connecting to redis sentinel service %s",
				o.RedisSentinelServiceName)
		}
		backend = cache.NewRedis(client, expiration, cache.WithCloser(client.Close))

	default:
		return nil, errors.Wrapf(ErrConfiguration, "unknown backend %q", o.Backend)
	}

	if o.Debug {
		backend = cache.WithDebugLogging(backend, log)
	}
	return backend, nil
}
