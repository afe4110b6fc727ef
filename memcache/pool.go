package memcache

import (
	"github.com/cockroachdb/errors"

	"github.com/agentuity/go-cache/logger"
	"github.com/agentuity/go-cache/pool"
)

// ClientPool is a bounded pool of Clients with dead-node propagation wired
// in: node outages observed by one client are pushed into every client the
// pool hands out afterwards, so a recycled or freshly created client does
// not reconnect to a node the fleet already knows is down.
type ClientPool struct {
	*pool.Pool[*Client]
	Tracker *pool.DeadNodeTracker
}

// NewPool returns a ClientPool over the given node addresses. The args are
// the translated backend connection parameters; opts tune the pool itself
// (size, idle timeout, get timeout).
func NewPool(servers []string, args Args, log logger.Logger, opts ...pool.Option) (*ClientPool, error) {
	if len(servers) == 0 {
		return nil, errors.New("memcache: no servers configured")
	}
	args = args.withDefaults()
	// Fail fast on unresolvable addresses instead of at first acquire.
	if _, err := newLiveNodeSelector(servers); err != nil {
		return nil, err
	}
	tracker := pool.NewDeadNodeTracker(servers, log.WithPrefix("memcache"))
	factory := pool.Factory[*Client]{
		New: func() (*Client, error) {
			return NewClient(servers, args)
		},
		Destroy: func(c *Client) error {
			return c.Close()
		},
		OnAcquire: func(c *Client) { tracker.OnAcquire(c) },
		OnRelease: func(c *Client) { tracker.OnRelease(c) },
	}
	opts = append([]pool.Option{pool.WithLogger(log)}, opts...)
	return &ClientPool{
		Pool:    pool.New(factory, opts...),
		Tracker: tracker,
	}, nil
}
