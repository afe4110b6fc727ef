package cache

import (
	"context"
	"sync"
	"time"
)

type dictEntry struct {
	value     any
	expiresAt time.Time
}

type dictBackend struct {
	mutex   sync.Mutex
	entries map[string]dictEntry
	cfg     config
}

var _ Backend = (*dictBackend)(nil)

// NewDict returns an in-process map-backed Backend. Values are stored
// as-is with no serialization, so mutations to stored pointers are visible
// through the cache. Expired entries are expunged lazily on reads and on
// every batch set.
func NewDict(opts ...Option) Backend {
	return &dictBackend{
		entries: make(map[string]dictEntry),
		cfg:     applyOptions(opts),
	}
}

func (d *dictBackend) Get(_ context.Context, key string) (any, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.getLocked(key), nil
}

func (d *dictBackend) GetMulti(_ context.Context, keys []string) ([]any, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]any, len(keys))
	for i, key := range keys {
		out[i] = d.getLocked(key)
	}
	return out, nil
}

func (d *dictBackend) getLocked(key string) any {
	entry, ok := d.entries[key]
	if !ok {
		return NoValue
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(time.Now()) {
		delete(d.entries, key)
		return NoValue
	}
	return entry.value
}

func (d *dictBackend) Set(ctx context.Context, key string, value any) error {
	return d.SetMulti(ctx, map[string]any{key: value})
}

// SetMulti replaces or inserts every key in mapping; keys not present in
// the mapping are untouched. Expired entries are expunged during each set.
func (d *dictBackend) SetMulti(_ context.Context, mapping map[string]any) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	now := time.Now()
	for key, entry := range d.entries {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			delete(d.entries, key)
		}
	}
	var expiresAt time.Time
	if d.cfg.expiration > 0 {
		expiresAt = now.Add(d.cfg.expiration)
	}
	for key, value := range mapping {
		d.entries[key] = dictEntry{value: value, expiresAt: expiresAt}
	}
	return nil
}

func (d *dictBackend) Delete(_ context.Context, key string) error {
	d.mutex.Lock()
	delete(d.entries, key)
	d.mutex.Unlock()
	return nil
}

func (d *dictBackend) DeleteMulti(_ context.Context, keys []string) error {
	d.mutex.Lock()
	for _, key := range keys {
		delete(d.entries, key)
	}
	d.mutex.Unlock()
	return nil
}

func (d *dictBackend) Close() error {
	return nil
}
