// Package memcache provides the pooled client for memcached-family
// backends: a wrapper around one protocol client bound to the full node
// list, with per-node dead state that the pool propagates between client
// instances.
package memcache

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"

	"github.com/agentuity/go-cache/pool"
)

// ErrCacheMiss is returned by Get and Delete when the key is not present.
var ErrCacheMiss = memcache.ErrCacheMiss

const (
	// DefaultDeadRetry is how long a node stays marked dead after a
	// network failure before it is tried again.
	DefaultDeadRetry = 5 * time.Minute
	// DefaultSocketTimeout bounds every call to a server.
	DefaultSocketTimeout = 3 * time.Second
)

// Args carries the backend-specific connection parameters produced by the
// configuration translation layer.
//
// Username and Password apply to the SASL-authenticated deployment variant.
// The bundled ASCII-protocol client does not authenticate; the fields are
// validated and carried so that integrations substituting an authenticating
// dial function receive them alongside the TLS configuration.
type Args struct {
	DeadRetry     time.Duration
	SocketTimeout time.Duration
	MaxIdleConns  int
	Username      string
	Password      string
	TLSConfig     *tls.Config
	// KeepAlive, when non-nil, enables TCP keepalive probes on new
	// connections with the given per-connection settings.
	KeepAlive *net.KeepAliveConfig
}

func (a Args) withDefaults() Args {
	if a.DeadRetry <= 0 {
		a.DeadRetry = DefaultDeadRetry
	}
	if a.SocketTimeout <= 0 {
		a.SocketTimeout = DefaultSocketTimeout
	}
	return a
}

// Client is one live session against the configured node set. It holds no
// goroutine-affine state, so ownership can move freely between goroutines;
// it is not safe for concurrent use, which is why it is managed by a pool
// that checks it out exclusively.
type Client struct {
	servers  []string
	args     Args
	selector *liveNodeSelector
	mc       *memcache.Client
}

var _ pool.NodeHealth = (*Client)(nil)

// NewClient returns a client bound to the given node addresses. No
// connection is made until the first operation.
func NewClient(servers []string, args Args) (*Client, error) {
	args = args.withDefaults()
	selector, err := newLiveNodeSelector(servers)
	if err != nil {
		return nil, err
	}
	mc := memcache.NewFromSelector(selector)
	mc.Timeout = args.SocketTimeout
	if args.MaxIdleConns > 0 {
		mc.MaxIdleConns = args.MaxIdleConns
	}
	if args.TLSConfig != nil || args.KeepAlive != nil {
		netDialer := &net.Dialer{Timeout: args.SocketTimeout}
		if args.KeepAlive != nil {
			netDialer.KeepAliveConfig = *args.KeepAlive
		}
		if args.TLSConfig != nil {
			dialer := &tls.Dialer{NetDialer: netDialer, Config: args.TLSConfig}
			mc.DialContext = dialer.DialContext
		} else {
			mc.DialContext = netDialer.DialContext
		}
	}
	return &Client{
		servers:  servers,
		args:     args,
		selector: selector,
		mc:       mc,
	}, nil
}

// Get returns the value stored for key, or ErrCacheMiss.
func (c *Client) Get(key string) ([]byte, error) {
	item, err := c.mc.Get(key)
	if err != nil {
		return nil, c.observeError(key, err)
	}
	return item.Value, nil
}

// GetMulti returns the values for the given keys. Missing keys are absent
// from the result map.
func (c *Client) GetMulti(keys []string) (map[string][]byte, error) {
	items, err := c.mc.GetMulti(keys)
	if err != nil {
		if len(keys) > 0 {
			err = c.observeError(keys[0], err)
		}
		return nil, err
	}
	out := make(map[string][]byte, len(items))
	for key, item := range items {
		out[key] = item.Value
	}
	return out, nil
}

// Set stores value under key with the given time to live. A zero ttl means
// no expiry.
func (c *Client) Set(key string, value []byte, ttl time.Duration) error {
	err := c.mc.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
	if err != nil {
		return c.observeError(key, err)
	}
	return nil
}

// Delete removes key. Returns ErrCacheMiss if it was not present.
func (c *Client) Delete(key string) error {
	if err := c.mc.Delete(key); err != nil {
		return c.observeError(key, err)
	}
	return nil
}

// Close releases the network resources held by the underlying protocol
// client.
func (c *Client) Close() error {
	return c.mc.Close()
}

// NodeCount implements pool.NodeHealth.
func (c *Client) NodeCount() int {
	return c.selector.nodeCount()
}

// DeadUntil implements pool.NodeHealth.
func (c *Client) DeadUntil(i int) time.Time {
	return c.selector.getDeadUntil(i)
}

// SetDeadUntil implements pool.NodeHealth.
func (c *Client) SetDeadUntil(i int, until time.Time) {
	c.selector.setDeadUntil(i, until)
}

// MarkDead implements pool.NodeHealth. The selector stops routing keys to
// the node until the mark lapses.
func (c *Client) MarkDead(i int, until time.Time, _ string) {
	c.selector.setDeadUntil(i, until)
}

// observeError marks the node serving key dead for the configured dead
// retry window when the failure looks like a node outage rather than a
// protocol-level miss.
func (c *Client) observeError(key string, err error) error {
	if errors.Is(err, memcache.ErrCacheMiss) || errors.Is(err, memcache.ErrNoServers) {
		return err
	}
	var netErr net.Error
	var timeoutErr *memcache.ConnectTimeoutError
	if errors.As(err, &netErr) || errors.As(err, &timeoutErr) {
		if i, pickErr := c.selector.pickIndex(key); pickErr == nil {
			c.selector.setDeadUntil(i, nowFunc().Add(c.args.DeadRetry))
		}
	}
	return err
}
