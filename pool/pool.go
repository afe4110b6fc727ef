package pool

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/agentuity/go-cache/logger"
)

var (
	// ErrPoolExhausted is returned when no client became available within
	// the configured get timeout.
	ErrPoolExhausted = errors.New("pool: timed out waiting for a client")
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("pool: closed")
)

const (
	// DefaultMaxSize is the maximum number of clients managed by a pool
	// when WithMaxSize is not given.
	DefaultMaxSize = 10
	// DefaultUnusedTimeout is how long a client may sit idle before it is
	// reaped. This ensures resources are released as utilization goes down.
	DefaultUnusedTimeout = time.Minute
	// DefaultGetTimeout is how long an acquire waits for a free client
	// before failing with ErrPoolExhausted.
	DefaultGetTimeout = 10 * time.Second
)

// nowFunc returns the current time; it's overridden in tests.
var nowFunc = time.Now

// Factory supplies the backend-specific lifecycle operations for the
// clients a pool manages. New and Destroy are the seams where a concrete
// backend integration plugs in. OnAcquire and OnRelease are optional hooks
// invoked on every checkout and return; they are how shared state (such as
// dead-node knowledge) is propagated between client instances.
type Factory[C any] struct {
	New       func() (C, error)
	Destroy   func(C) error
	OnAcquire func(C)
	OnRelease func(C)
}

type config struct {
	maxSize       int
	unusedTimeout time.Duration
	getTimeout    time.Duration
	log           logger.Logger
}

// Option configures a Pool.
type Option func(*config)

// WithMaxSize sets the maximum number of clients concurrently checked out
// plus idle. Defaults to DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) { c.maxSize = n }
}

// WithUnusedTimeout sets the idle time to live for unused clients.
// Defaults to DefaultUnusedTimeout.
func WithUnusedTimeout(d time.Duration) Option {
	return func(c *config) { c.unusedTimeout = d }
}

// WithGetTimeout sets the maximum time an acquire waits for a free client.
// Zero means fail immediately when the pool is exhausted; a negative value
// means wait until a client is released or the context is canceled.
// Defaults to DefaultGetTimeout.
func WithGetTimeout(d time.Duration) Option {
	return func(c *config) { c.getTimeout = d }
}

// WithLogger sets the logger used for acquire, release, and reap events.
// Defaults to a console logger that logs errors only.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.log = l }
}

type poolItem[C any] struct {
	expiresAt time.Time
	client    C
}

// Stats is a point-in-time snapshot of pool activity counters.
type Stats struct {
	Hits     uint64 // acquires served from the idle queue
	Misses   uint64 // acquires that created a new client
	Timeouts uint64 // acquires that failed with ErrPoolExhausted
	Reaps    uint64 // idle clients destroyed by expiry or overflow
	Acquired int    // clients currently checked out
	Idle     int    // clients currently idle
}

// Pool is a bounded, goroutine-safe supply of clients of type C.
//
// At most maxSize clients exist at once, counting both checked-out and idle
// ones. Idle clients are kept in an expiry-ordered queue: releases append to
// the tail, reuse pops from the tail, and expiry reaping consumes the
// oldest-first prefix from the head. Clients handed out by the pool are
// never shared between callers; exclusive checkout is the concurrency
// contract that lets unsynchronized client types be reused across
// goroutines.
type Pool[C any] struct {
	factory Factory[C]
	cfg     config
	id      string
	log     logger.Logger
	turns   chan struct{}

	mu       sync.Mutex
	idle     []poolItem[C] // oldest first
	acquired int
	closed   bool
	stats    Stats
}

// New returns a pool that manages clients built by factory.New and torn
// down by factory.Destroy.
func New[C any](factory Factory[C], opts ...Option) *Pool[C] {
	cfg := config{
		maxSize:       DefaultMaxSize,
		unusedTimeout: DefaultUnusedTimeout,
		getTimeout:    DefaultGetTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSize <= 0 {
		cfg.maxSize = DefaultMaxSize
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger(logger.LevelError)
	}
	id := uuid.New().String()[:8]
	return &Pool[C]{
		factory: factory,
		cfg:     cfg,
		id:      id,
		log:     cfg.log.With(map[string]interface{}{"pool": id}),
		turns:   make(chan struct{}, cfg.maxSize),
	}
}

// Acquire returns a client for exclusive use by the caller. The caller must
// pass the client to Release exactly once when done; prefer With, which
// guarantees that. Expired idle clients are reaped before waiting.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	var zero C
	p.log.Trace("acquiring client")
	p.reapExpired()
	if err := p.waitTurn(ctx); err != nil {
		return zero, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.freeTurn()
		return zero, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		item := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.acquired++
		p.stats.Hits++
		p.mu.Unlock()
		if p.factory.OnAcquire != nil {
			p.factory.OnAcquire(item.client)
		}
		p.log.Trace("acquired client %v", item.client)
		return item.client, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	// Below capacity, so create. The reserved turn keeps the capacity
	// invariant while the client exists but is not yet counted.
	client, err := p.factory.New()
	if err != nil {
		p.freeTurn()
		return zero, errors.Wrapf(err, "pool %s: creating client", p.id)
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	if p.factory.OnAcquire != nil {
		p.factory.OnAcquire(client)
	}
	p.log.Trace("acquired new client %v", client)
	return client, nil
}

// Release returns a previously acquired client to the pool. If the idle
// queue is already full, or the pool has been closed, the client is
// destroyed instead.
func (p *Pool[C]) Release(client C) {
	if p.factory.OnRelease != nil {
		p.factory.OnRelease(client)
	}
	p.log.Trace("releasing client %v", client)
	p.mu.Lock()
	p.acquired--
	if p.closed || len(p.idle) >= p.cfg.maxSize {
		p.stats.Reaps++
		p.mu.Unlock()
		p.log.Trace("reaping exceeding client %v", client)
		p.destroy(client)
		p.freeTurn()
		return
	}
	p.idle = append(p.idle, poolItem[C]{
		expiresAt: nowFunc().Add(p.cfg.unusedTimeout),
		client:    client,
	})
	p.mu.Unlock()
	p.freeTurn()
}

// With acquires a client, runs fn with it, and releases the client on every
// exit path, including a panic in fn. The error returned by fn propagates
// after release bookkeeping completes.
func (p *Pool[C]) With(ctx context.Context, fn func(C) error) error {
	client, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(client)
	return fn(client)
}

// Close destroys every idle client. Destruction is best-effort: a failure
// to destroy one client is logged and the rest are still destroyed.
// Subsequent acquires fail with ErrPoolClosed.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, item := range idle {
		p.destroy(item.client)
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Acquired = p.acquired
	s.Idle = len(p.idle)
	return s
}

func (p *Pool[C]) waitTurn(ctx context.Context) error {
	select {
	case p.turns <- struct{}{}:
		return nil
	default:
	}
	if p.cfg.getTimeout == 0 {
		p.recordTimeout()
		return errors.Wrapf(ErrPoolExhausted, "pool %s is at capacity %d", p.id, p.cfg.maxSize)
	}
	if p.cfg.getTimeout < 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.turns <- struct{}{}:
			return nil
		}
	}
	timer := time.NewTimer(p.cfg.getTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.turns <- struct{}{}:
		return nil
	case <-timer.C:
		p.recordTimeout()
		return errors.Wrapf(ErrPoolExhausted, "unable to get a client from pool %s after %s", p.id, p.cfg.getTimeout)
	}
}

func (p *Pool[C]) freeTurn() {
	<-p.turns
}

func (p *Pool[C]) recordTimeout() {
	p.mu.Lock()
	p.stats.Timeouts++
	p.mu.Unlock()
}

// reapExpired drops all expired clients from the head of the idle queue.
// Items are ordered oldest-first, so scanning stops at the first item that
// has not expired.
func (p *Pool[C]) reapExpired() {
	now := nowFunc()
	var expired []C
	p.mu.Lock()
	var i int
	for i < len(p.idle) && p.idle[i].expiresAt.Before(now) {
		i++
	}
	if i > 0 {
		expired = make([]C, i)
		for j := range expired {
			expired[j] = p.idle[j].client
		}
		p.idle = slices.Delete(p.idle, 0, i)
		p.stats.Reaps += uint64(i)
	}
	p.mu.Unlock()
	for _, client := range expired {
		p.log.Trace("reaping expired client %v", client)
		p.destroy(client)
	}
}

func (p *Pool[C]) destroy(client C) {
	if p.factory.Destroy == nil {
		return
	}
	if err := p.factory.Destroy(client); err != nil {
		p.log.Warn("unable to clean up a client: %s", err)
	}
}
