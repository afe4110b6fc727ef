package cache

import (
	"context"

	"github.com/agentuity/go-cache/logger"
)

type debugBackend struct {
	next Backend
	log  logger.Logger
}

var _ Backend = (*debugBackend)(nil)

// WithDebugLogging wraps a Backend so that every operation logs its keys
// and values at debug level. Only useful when you need to see the specific
// get/set/delete calls; typically left off.
func WithDebugLogging(next Backend, log logger.Logger) Backend {
	return &debugBackend{next: next, log: log.WithPrefix("cache")}
}

func (d *debugBackend) Get(ctx context.Context, key string) (any, error) {
	val, err := d.next.Get(ctx, key)
	d.log.Debug("GET key=%q value=%v err=%v", key, val, err)
	return val, err
}

func (d *debugBackend) GetMulti(ctx context.Context, keys []string) ([]any, error) {
	values, err := d.next.GetMulti(ctx, keys)
	d.log.Debug("GET_MULTI keys=%q values=%v err=%v", keys, values, err)
	return values, err
}

func (d *debugBackend) Set(ctx context.Context, key string, value any) error {
	d.log.Debug("SET key=%q value=%v", key, value)
	return d.next.Set(ctx, key, value)
}

func (d *debugBackend) SetMulti(ctx context.Context, mapping map[string]any) error {
	d.log.Debug("SET_MULTI mapping=%v", mapping)
	return d.next.SetMulti(ctx, mapping)
}

func (d *debugBackend) Delete(ctx context.Context, key string) error {
	err := d.next.Delete(ctx, key)
	d.log.Debug("DELETE key=%q err=%v", key, err)
	return err
}

func (d *debugBackend) DeleteMulti(ctx context.Context, keys []string) error {
	err := d.next.DeleteMulti(ctx, keys)
	d.log.Debug("DELETE_MULTI keys=%q err=%v", keys, err)
	return err
}

func (d *debugBackend) Close() error {
	return d.next.Close()
}
