package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictGetMissingKey(t *testing.T) {
	d := NewDict()
	val, err := d.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, NoValue, val)
}

func TestDictSetGetDelete(t *testing.T) {
	ctx := context.Background()
	d := NewDict()

	require.NoError(t, d.Set(ctx, "k", "v"))
	val, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, d.Delete(ctx, "k"))
	val, err = d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, NoValue, val)
}

func TestDictGetMultiPreservesOrder(t *testing.T) {
	ctx := context.Background()
	d := NewDict()
	require.NoError(t, d.SetMulti(ctx, map[string]any{"a": 1, "c": 3}))

	values, err := d.GetMulti(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, 1, values[0])
	assert.Equal(t, NoValue, values[1])
	assert.Equal(t, 3, values[2])
}

func TestDictDeleteMulti(t *testing.T) {
	ctx := context.Background()
	d := NewDict()
	require.NoError(t, d.SetMulti(ctx, map[string]any{"a": 1, "b": 2, "c": 3}))
	require.NoError(t, d.DeleteMulti(ctx, []string{"a", "c", "missing"}))

	values, err := d.GetMulti(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, NoValue, values[0])
	assert.Equal(t, 2, values[1])
	assert.Equal(t, NoValue, values[2])
}

func TestDictExpiration(t *testing.T) {
	ctx := context.Background()
	d := NewDict(WithExpiration(10 * time.Millisecond))
	require.NoError(t, d.Set(ctx, "k", "v"))

	val, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	time.Sleep(20 * time.Millisecond)
	val, err = d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, NoValue, val)
}

func TestDictNoExpiration(t *testing.T) {
	ctx := context.Background()
	d := NewDict(WithExpiration(0))
	require.NoError(t, d.Set(ctx, "k", "v"))

	val, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestDictTypedGet(t *testing.T) {
	type user struct {
		Name string
	}
	ctx := context.Background()
	d := NewDict()
	require.NoError(t, d.Set(ctx, "u", user{Name: "alice"}))

	got, found, err := Get[user](ctx, d, "u")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", got.Name)

	_, found, err = Get[user](ctx, d, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
