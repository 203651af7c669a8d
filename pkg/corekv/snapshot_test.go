package corekv

import "testing"

func TestNodesSnapshotReserveRelease(t *testing.T) {
	n := &node{name: "N1"}
	n.active.Store(true)
	n.refCount.Store(1)

	s := newNodesSnapshot([]*node{n})
	if s.refCount.Load() != 1 {
		t.Fatalf("initial refcount = %d, want 1", s.refCount.Load())
	}

	s.reserve()
	if s.refCount.Load() != 2 {
		t.Fatalf("refcount after reserve = %d, want 2", s.refCount.Load())
	}

	s.release()
	s.release()
	if s.refCount.Load() != 0 {
		t.Fatalf("refcount after two releases = %d, want 0", s.refCount.Load())
	}
}

func TestNodesSnapshotActiveFiltersDeactivated(t *testing.T) {
	live := &node{name: "live"}
	live.active.Store(true)
	dead := &node{name: "dead"}
	dead.active.Store(false)

	s := newNodesSnapshot([]*node{live, dead})
	active := s.active()
	if len(active) != 1 || active[0] != live {
		t.Fatalf("active() = %v, want just [live]", active)
	}
}

func TestClusterPublishSchedulesRemovedNodesForDrain(t *testing.T) {
	c := &Cluster{}
	n1 := &node{name: "N1"}
	n1.active.Store(true)
	n1.refCount.Store(1)
	c.snapshot.Store(newNodesSnapshot([]*node{n1}))

	// Publish a snapshot that drops n1 entirely.
	next := newNodesSnapshot(nil)
	c.publish(next, []*node{n1})

	c.drainGC()

	if n1.refCount.Load() != 0 {
		t.Fatalf("n1 refcount after drain = %d, want 0 (released once)", n1.refCount.Load())
	}
}

func TestClusterRoundRobinNodeCyclesAndSkipsEmpty(t *testing.T) {
	c := &Cluster{}
	if got := c.roundRobinNode(nil); got != nil {
		t.Fatalf("roundRobinNode(nil) = %v, want nil", got)
	}

	a := &node{name: "A"}
	b := &node{name: "B"}
	active := []*node{a, b}

	seen := make([]*node, 4)
	for i := range seen {
		seen[i] = c.roundRobinNode(active)
	}
	if seen[0] != a || seen[1] != b || seen[2] != a || seen[3] != b {
		t.Fatalf("roundRobinNode sequence = %v, want a,b,a,b", seen)
	}
}

func TestClusterReserveNodesSeesCurrentSnapshot(t *testing.T) {
	c := &Cluster{}
	n1 := &node{name: "N1"}
	n1.active.Store(true)
	c.snapshot.Store(newNodesSnapshot([]*node{n1}))

	s := c.ReserveNodes()
	defer s.release()

	if len(s.nodes) != 1 || s.nodes[0] != n1 {
		t.Fatalf("ReserveNodes() = %v", s.nodes)
	}
}
