package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentuity/go-cache/logger"
)

type fakeClient struct {
	id int
}

type fakeFactory struct {
	mu         sync.Mutex
	created    int
	destroyed  []int
	newErr     error
	destroyErr map[int]error
}

func (f *fakeFactory) factory() Factory[*fakeClient] {
	return Factory[*fakeClient]{
		New: func() (*fakeClient, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.newErr != nil {
				return nil, f.newErr
			}
			f.created++
			return &fakeClient{id: f.created}, nil
		},
		Destroy: func(c *fakeClient) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.destroyed = append(f.destroyed, c.id)
			if err, ok := f.destroyErr[c.id]; ok {
				return err
			}
			return nil
		},
	}
}

func (f *fakeFactory) destroyedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.destroyed))
	copy(out, f.destroyed)
	return out
}

func newTestPool(t *testing.T, f *fakeFactory, opts ...Option) *Pool[*fakeClient] {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewTestLogger())}, opts...)
	p := New(f.factory(), opts...)
	t.Cleanup(p.Close)
	return p
}

func TestAcquireReleaseAccounting(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(2))

	client, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Acquired)
	assert.Equal(t, 0, p.Stats().Idle)

	p.Release(client)
	assert.Equal(t, 0, p.Stats().Acquired)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestAcquireReusesIdleClient(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(first)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(second)

	assert.Same(t, first, second)
	f.mu.Lock()
	assert.Equal(t, 1, f.created)
	f.mu.Unlock()
	assert.Equal(t, uint64(1), p.Stats().Hits)
	assert.Equal(t, uint64(1), p.Stats().Misses)
}

func TestReapExpiredOldestFirst(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(4), WithUnusedTimeout(10*time.Second))

	client, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(client)

	// An idle item far in the future behind the expired one. Reaping must
	// stop at the first non-expired item and never destroy it.
	fresh := &fakeClient{id: 99}
	p.mu.Lock()
	p.idle = append(p.idle, poolItem[*fakeClient]{
		expiresAt: time.Now().Add(time.Hour),
		client:    fresh,
	})
	p.mu.Unlock()

	nowFunc = func() time.Time { return time.Now().Add(20 * time.Second) }
	defer func() { nowFunc = time.Now }()

	err = p.With(context.Background(), func(c *fakeClient) error {
		assert.Same(t, fresh, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{client.id}, f.destroyedIDs())
	assert.Equal(t, uint64(1), p.Stats().Reaps)
}

func TestAcquireCreateFailureKeepsAccounting(t *testing.T) {
	f := &fakeFactory{newErr: errors.New("connect refused")}
	p := newTestPool(t, f)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connect refused")
	assert.Equal(t, 0, p.Stats().Acquired)
	assert.Equal(t, 0, p.Stats().Idle)

	// The failed attempt must not hold a capacity slot.
	f.mu.Lock()
	f.newErr = nil
	f.mu.Unlock()
	client, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(client)
}

func TestPoolLimitsMaximumClients(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(2), WithGetTimeout(0))

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, uint64(1), p.Stats().Timeouts)

	p.Release(c1)
	c3, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c2)
	p.Release(c3)
}

func TestGetTimeoutWhileHeldConcurrently(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(1), WithGetTimeout(0))

	ctx := context.Background()
	client, err := p.Acquire(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		done <- err
	}()
	assert.ErrorIs(t, <-done, ErrPoolExhausted)

	p.Release(client)
	require.NoError(t, p.With(ctx, func(*fakeClient) error { return nil }))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(1), WithGetTimeout(5*time.Second))

	ctx := context.Background()
	client, err := p.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *fakeClient, 1)
	go func() {
		c, err := p.Acquire(ctx)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- c
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(client)

	select {
	case c, ok := <-acquired:
		require.True(t, ok, "waiter should have acquired the released client")
		p.Release(c)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestAcquireContextCanceledWhileWaiting(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(1), WithGetTimeout(-1))

	client, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReleaseToFullIdleQueueDestroys(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(1))

	client, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// Simulate the release race where the idle queue filled up while this
	// client was checked out.
	squatter := &fakeClient{id: 42}
	p.mu.Lock()
	p.idle = append(p.idle, poolItem[*fakeClient]{
		expiresAt: time.Now().Add(time.Hour),
		client:    squatter,
	})
	p.mu.Unlock()

	p.Release(client)
	assert.Equal(t, []int{client.id}, f.destroyedIDs())
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestWithReleasesOnError(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f)

	wantErr := errors.New("caller failure")
	err := p.With(context.Background(), func(*fakeClient) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, p.Stats().Acquired)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestWithReleasesOnPanic(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f)

	assert.Panics(t, func() {
		_ = p.With(context.Background(), func(*fakeClient) error { panic("boom") })
	})
	assert.Equal(t, 0, p.Stats().Acquired)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestCloseDestroysAllIdleBestEffort(t *testing.T) {
	f := &fakeFactory{destroyErr: map[int]error{1: errors.New("already gone")}}
	log := logger.NewTestLogger()
	p := New(f.factory(), WithMaxSize(3), WithLogger(log))

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	c3, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c1)
	p.Release(c2)
	p.Release(c3)

	p.Close()
	assert.ElementsMatch(t, []int{1, 2, 3}, f.destroyedIDs())

	var warned bool
	for _, entry := range log.Logs() {
		if entry.Severity == "WARNING" {
			warned = true
		}
	}
	assert.True(t, warned, "destroy failure should be logged, not fatal")

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCapacityInvariantUnderConcurrency(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, WithMaxSize(4), WithGetTimeout(-1))

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				err := p.With(context.Background(), func(*fakeClient) error {
					s := p.Stats()
					assert.LessOrEqual(t, s.Acquired+s.Idle, 4)
					assert.GreaterOrEqual(t, s.Acquired, 1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, 0, s.Acquired)
	assert.LessOrEqual(t, s.Idle, 4)
}
