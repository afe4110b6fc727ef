package cache

import "context"

type nullBackend struct{}

var _ Backend = (*nullBackend)(nil)

// NewNull returns a Backend that stores nothing: every read misses and
// every write succeeds silently. It is the default when caching is not
// enabled, so that an in-memory cache never ends up in production
// unintentionally.
func NewNull() Backend {
	return &nullBackend{}
}

func (*nullBackend) Get(context.Context, string) (any, error) {
	return NoValue, nil
}

func (*nullBackend) GetMulti(_ context.Context, keys []string) ([]any, error) {
	out := make([]any, len(keys))
	for i := range out {
		out[i] = NoValue
	}
	return out, nil
}

func (*nullBackend) Set(context.Context, string, any) error         { return nil }
func (*nullBackend) SetMulti(context.Context, map[string]any) error { return nil }
func (*nullBackend) Delete(context.Context, string) error           { return nil }
func (*nullBackend) DeleteMulti(context.Context, []string) error    { return nil }
func (*nullBackend) Close() error                                   { return nil }
