package memcache

import (
	"hash/crc32"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"
)

// nowFunc returns the current time; it's overridden in tests.
var nowFunc = time.Now

// liveNodeSelector routes keys to nodes the way gomemcache's ServerList
// does (CRC32 of the key modulo the node count) but skips nodes currently
// marked dead, probing forward to the next live node instead. When every
// node is dead it reports memcache.ErrNoServers rather than dialing into a
// known outage.
type liveNodeSelector struct {
	mu        sync.RWMutex
	addrs     []net.Addr
	deadUntil []time.Time
}

var _ memcache.ServerSelector = (*liveNodeSelector)(nil)

func newLiveNodeSelector(servers []string) (*liveNodeSelector, error) {
	if len(servers) == 0 {
		return nil, errors.New("memcache: no servers configured")
	}
	addrs := make([]net.Addr, len(servers))
	for i, server := range servers {
		if strings.Contains(server, "/") {
			addr, err := net.ResolveUnixAddr("unix", server)
			if err != nil {
				return nil, errors.Wrapf(err, "memcache: resolving %q", server)
			}
			addrs[i] = addr
		} else {
			addr, err := net.ResolveTCPAddr("tcp", server)
			if err != nil {
				return nil, errors.Wrapf(err, "memcache: resolving %q", server)
			}
			addrs[i] = addr
		}
	}
	return &liveNodeSelector{
		addrs:     addrs,
		deadUntil: make([]time.Time, len(addrs)),
	}, nil
}

func (s *liveNodeSelector) PickServer(key string) (net.Addr, error) {
	i, err := s.pickIndex(key)
	if err != nil {
		return nil, err
	}
	return s.addrs[i], nil
}

func (s *liveNodeSelector) Each(f func(net.Addr) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := nowFunc()
	for i, addr := range s.addrs {
		if s.deadUntil[i].After(now) {
			continue
		}
		if err := f(addr); err != nil {
			return err
		}
	}
	return nil
}

// pickIndex returns the index of the node that should serve key: the hash
// target if it is live, otherwise the next live node after it.
func (s *liveNodeSelector) pickIndex(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := nowFunc()
	start := int(crc32.ChecksumIEEE([]byte(key)) % uint32(len(s.addrs)))
	for probe := range len(s.addrs) {
		i := (start + probe) % len(s.addrs)
		if !s.deadUntil[i].After(now) {
			return i, nil
		}
	}
	return 0, memcache.ErrNoServers
}

func (s *liveNodeSelector) nodeCount() int {
	return len(s.addrs)
}

func (s *liveNodeSelector) getDeadUntil(i int) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadUntil[i]
}

func (s *liveNodeSelector) setDeadUntil(i int, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadUntil[i] = until
}
