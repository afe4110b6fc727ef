package pool

import (
	"sync"
	"time"

	"github.com/agentuity/go-cache/logger"
)

// NodeHealth is implemented by pooled clients that keep per-node
// availability state for a fixed list of upstream nodes. The zero time
// means the node is considered live.
type NodeHealth interface {
	// NodeCount returns the number of configured upstream nodes.
	NodeCount() int
	// DeadUntil returns the time until which node i is considered dead.
	DeadUntil(i int) time.Time
	// SetDeadUntil overwrites the dead-until time for node i without any
	// side effects.
	SetDeadUntil(i int, until time.Time)
	// MarkDead marks node i dead until the given time, allowing the
	// client to tear down any connection state it holds for that node.
	MarkDead(i int, until time.Time, reason string)
}

// DeadNodeTracker propagates "this upstream node is unhealthy" knowledge
// between pooled clients without requiring a shared live connection. The
// state is in-process only and eventually consistent: clients report what
// they observed when released, and every client acquired afterwards is
// primed with the table before use, so a fleet of pooled clients does not
// stampede a node one of them has already found dead.
//
// A tracker belongs to exactly one pool; wire it in through the pool
// factory's OnAcquire and OnRelease hooks.
type DeadNodeTracker struct {
	mu        sync.Mutex
	nodes     []string
	deadUntil []time.Time
	log       logger.Logger
}

// NewDeadNodeTracker returns a tracker for the given node address list.
// All nodes start out live.
func NewDeadNodeTracker(nodes []string, log logger.Logger) *DeadNodeTracker {
	return &DeadNodeTracker{
		nodes:     nodes,
		deadUntil: make([]time.Time, len(nodes)),
		log:       log,
	}
}

// OnAcquire pushes node state known to the tracker into a client that is
// being handed out. Nodes the tracker considers dead are marked dead in the
// client so it will not attempt to contact them.
func (t *DeadNodeTracker) OnAcquire(client NodeHealth) {
	now := nowFunc()
	t.mu.Lock()
	snapshot := append([]time.Time(nil), t.deadUntil...)
	t.mu.Unlock()
	n := min(client.NodeCount(), len(snapshot))
	for i := range n {
		deaduntil := snapshot[i]
		if deaduntil.After(now) && !client.DeadUntil(i).After(now) {
			client.MarkDead(i, deaduntil, "propagating death mark from the pool")
		}
		client.SetDeadUntil(i, deaduntil)
	}
}

// OnRelease harvests node state a client observed while checked out. If the
// client found a node dead, the tracker records it; if the tracker's own
// mark has lapsed and the client reports the node live, the mark is reset.
func (t *DeadNodeTracker) OnRelease(client NodeHealth) {
	now := nowFunc()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := min(client.NodeCount(), len(t.deadUntil))
	for i := range n {
		// Do nothing if we already know this node is dead.
		if t.deadUntil[i].After(now) {
			continue
		}
		if reported := client.DeadUntil(i); reported.After(now) {
			t.deadUntil[i] = reported
			t.log.Debug("marked node %s dead until %s", t.nodes[i], reported)
		} else {
			t.deadUntil[i] = time.Time{}
		}
	}
}

// Snapshot returns a copy of the per-node dead-until table.
func (t *DeadNodeTracker) Snapshot() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.deadUntil...)
}
