// Package config translates flat deployment configuration into the
// backend-specific connection parameters each cache backend needs: pool
// sizing, dead-node retry windows, TLS material, SASL credentials, and
// sentinel topologies.
package config

import (
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration is returned for malformed or contradictory options,
// before any backend is constructed.
var ErrConfiguration = errors.New("config: invalid cache configuration")

// Backend names accepted by Options.Backend.
const (
	BackendNull          = "null"
	BackendDict          = "dict"
	BackendMemcachePool  = "memcache_pool"
	BackendRedis         = "redis"
	BackendRedisSentinel = "redis_sentinel"
)

// Duration unmarshals from YAML either as an integer number of seconds or
// as a duration string such as "90s", "5m", or "1d12h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.Wrapf(ErrConfiguration, "invalid duration %q", value.Value)
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Options is the flat per-deployment configuration surface. Field names
// mirror the configuration file keys.
type Options struct {
	// Enabled is the global toggle for caching. When false, NewBackend
	// returns the null backend regardless of Backend.
	Enabled bool `yaml:"enabled"`
	// Backend selects the storage implementation.
	Backend string `yaml:"backend"`
	// ExpirationTime is the default TTL for any cached item.
	ExpirationTime Duration `yaml:"expiration_time"`
	// Debug wraps the backend with per-operation key/value logging.
	Debug bool `yaml:"debug"`

	// Memcache servers in the format of "host:port".
	MemcacheServers []string `yaml:"memcache_servers"`
	// How long a memcached server is considered dead before it is tried
	// again.
	MemcacheDeadRetry Duration `yaml:"memcache_dead_retry"`
	// Timeout for every call to a server.
	MemcacheSocketTimeout Duration `yaml:"memcache_socket_timeout"`
	// Max total number of open connections to every memcached server.
	MemcachePoolMaxSize int `yaml:"memcache_pool_maxsize"`
	// How long a connection is held unused in the pool before it is
	// closed.
	MemcachePoolUnusedTimeout Duration `yaml:"memcache_pool_unused_timeout"`
	// How long an operation will wait to get a client from the pool.
	MemcachePoolConnectionGetTimeout Duration `yaml:"memcache_pool_connection_get_timeout"`
	// SASL authentication for the memcached backend.
	MemcacheSASLEnabled bool   `yaml:"memcache_sasl_enabled"`
	MemcacheUsername    string `yaml:"memcache_username"`
	MemcachePassword    string `yaml:"memcache_password"`
	// TCP keepalive probing on memcached connections.
	EnableSocketKeepalive   bool     `yaml:"enable_socket_keepalive"`
	SocketKeepaliveIdle     Duration `yaml:"socket_keepalive_idle"`
	SocketKeepaliveInterval Duration `yaml:"socket_keepalive_interval"`
	SocketKeepaliveCount    int      `yaml:"socket_keepalive_count"`

	RedisServer        string   `yaml:"redis_server"`
	RedisUsername      string   `yaml:"redis_username"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisSocketTimeout Duration `yaml:"redis_socket_timeout"`
	// Sentinel addresses, "host:port" or "[v6addr]:port".
	RedisSentinels           []string `yaml:"redis_sentinels"`
	RedisSentinelServiceName string   `yaml:"redis_sentinel_service_name"`

	TLSEnabled  bool   `yaml:"tls_enabled"`
	TLSCAFile   string `yaml:"tls_cafile"`
	TLSCertFile string `yaml:"tls_certfile"`
	TLSKeyFile  string `yaml:"tls_keyfile"`
	// TLSAllowedCiphers restricts the cipher suites offered during the
	// handshake. Names must match Go's cipher suite names. Empty means the
	// default set.
	TLSAllowedCiphers []string `yaml:"tls_allowed_ciphers"`
}

// DefaultOptions returns the documented defaults: caching disabled, null
// backend, 10 minute TTL, one local memcached node, and the standard pool
// sizing.
func DefaultOptions() *Options {
	return &Options{
		Enabled:                          false,
		Backend:                          BackendNull,
		ExpirationTime:                   Duration(600 * time.Second),
		MemcacheServers:                  []string{"localhost:11211"},
		MemcacheDeadRetry:                Duration(5 * time.Minute),
		MemcacheSocketTimeout:            Duration(3 * time.Second),
		MemcachePoolMaxSize:              10,
		MemcachePoolUnusedTimeout:        Duration(60 * time.Second),
		MemcachePoolConnectionGetTimeout: Duration(10 * time.Second),
		SocketKeepaliveIdle:              Duration(time.Second),
		SocketKeepaliveInterval:          Duration(time.Second),
		SocketKeepaliveCount:             1,
		RedisServer:                      "localhost:6379",
		RedisSocketTimeout:               Duration(time.Second),
		RedisSentinelServiceName:         "mymaster",
	}
}

// Load parses a YAML document into Options, applying defaults for absent
// keys, and validates the result.
func Load(data []byte) (*Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrap(err, "config: parsing options")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate rejects malformed or contradictory options. It runs before any
// backend or pool is constructed so misconfiguration never surfaces as a
// runtime connection failure.
func (o *Options) Validate() error {
	switch o.Backend {
	case BackendNull, BackendDict, BackendMemcachePool, BackendRedis, BackendRedisSentinel:
	default:
		return errors.Wrapf(ErrConfiguration, "unknown backend %q", o.Backend)
	}
	if o.MemcacheSASLEnabled && (o.MemcacheUsername == "" || o.MemcachePassword == "") {
		return errors.Wrap(ErrConfiguration,
			"username and password should be configured to use SASL authentication")
	}
	if o.TLSEnabled {
		switch o.Backend {
		case BackendMemcachePool, BackendRedis, BackendRedisSentinel:
		default:
			return errors.Wrapf(ErrConfiguration,
				"TLS is not supported by the %s backend", o.Backend)
		}
	}
	if o.Backend == BackendMemcachePool && len(o.MemcacheServers) == 0 {
		return errors.Wrap(ErrConfiguration, "memcache_servers must not be empty")
	}
	if o.EnableSocketKeepalive {
		if o.SocketKeepaliveIdle.Std() <= 0 || o.SocketKeepaliveInterval.Std() <= 0 || o.SocketKeepaliveCount <= 0 {
			return errors.Wrap(ErrConfiguration,
				"socket keepalive idle, interval and count must be positive")
		}
	}
	if o.Backend == BackendRedisSentinel {
		if len(o.RedisSentinels) == 0 {
			return errors.Wrap(ErrConfiguration, "redis_sentinels must not be empty")
		}
		for _, sentinel := range o.RedisSentinels {
			if _, err := parseSentinel(sentinel); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	sentinelV6 = regexp.MustCompile(`^\[(\S+)\]:(\d+)$`)
	sentinelV4 = regexp.MustCompile(`^(\S+):(\d+)$`)
)

// parseSentinel validates a sentinel address, accepting IPv6
// ("[::1]:26379"), IPv4, and hostname forms, and returns it in the
// "host:port" shape go-redis expects.
func parseSentinel(sentinel string) (string, error) {
	if m := sentinelV6.FindStringSubmatch(sentinel); m != nil {
		return "[" + m[1] + "]:" + m[2], nil
	}
	if m := sentinelV4.FindStringSubmatch(sentinel); m != nil {
		return m[1] + ":" + m[2], nil
	}
	return "", errors.Wrapf(ErrConfiguration, "malformed sentinel server %q", sentinel)
}
