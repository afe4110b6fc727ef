package memcache

import (
	"net"
	"testing"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorPickIsStable(t *testing.T) {
	s, err := newLiveNodeSelector([]string{"127.0.0.1:11211", "127.0.0.1:11212", "127.0.0.1:11213"})
	require.NoError(t, err)

	first, err := s.PickServer("some-key")
	require.NoError(t, err)
	for range 10 {
		addr, err := s.PickServer("some-key")
		require.NoError(t, err)
		assert.Equal(t, first.String(), addr.String())
	}
}

func TestSelectorSkipsDeadNode(t *testing.T) {
	s, err := newLiveNodeSelector([]string{"127.0.0.1:11211", "127.0.0.1:11212"})
	require.NoError(t, err)

	i, err := s.pickIndex("some-key")
	require.NoError(t, err)
	s.setDeadUntil(i, time.Now().Add(time.Minute))

	j, err := s.pickIndex("some-key")
	require.NoError(t, err)
	assert.NotEqual(t, i, j)
}

func TestSelectorAllDead(t *testing.T) {
	s, err := newLiveNodeSelector([]string{"127.0.0.1:11211", "127.0.0.1:11212"})
	require.NoError(t, err)

	until := time.Now().Add(time.Minute)
	s.setDeadUntil(0, until)
	s.setDeadUntil(1, until)

	_, err = s.PickServer("some-key")
	assert.ErrorIs(t, err, gomemcache.ErrNoServers)

	var visited int
	require.NoError(t, s.Each(func(net.Addr) error {
		visited++
		return nil
	}))
	assert.Zero(t, visited)
}

func TestSelectorDeadMarkLapses(t *testing.T) {
	s, err := newLiveNodeSelector([]string{"127.0.0.1:11211"})
	require.NoError(t, err)

	s.setDeadUntil(0, time.Now().Add(time.Minute))
	_, err = s.PickServer("some-key")
	assert.ErrorIs(t, err, gomemcache.ErrNoServers)

	nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	defer func() { nowFunc = time.Now }()
	_, err = s.PickServer("some-key")
	assert.NoError(t, err)
}

func TestSelectorRejectsEmptyServerList(t *testing.T) {
	_, err := newLiveNodeSelector(nil)
	assert.Error(t, err)
}
