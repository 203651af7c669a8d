package corekv

import "sync/atomic"

// nodesSnapshot is the immutable, reference-counted array described in
// §4.3. Readers reserve it before iterating and release it when done; the
// array (not the nodes themselves) is freed once the last reader releases
// AND the tend loop has drained it from the garbage-collection list.
type nodesSnapshot struct {
	refCount atomic.Int32
	nodes    []*node
}

func newNodesSnapshot(nodes []*node) *nodesSnapshot {
	s := &nodesSnapshot{nodes: nodes}
	s.refCount.Store(1) // the Cluster's own published reference
	return s
}

func (s *nodesSnapshot) reserve() {
	s.refCount.Add(1)
}

// release decrements the refcount. It never frees the underlying nodes —
// only the array wrapper — matching the spec's "last release frees the
// array only" invariant.
func (s *nodesSnapshot) release() {
	s.refCount.Add(-1)
}

// active returns the subset of nodes still marked active, used as the
// round-robin fallback set when partition routing misses.
func (s *nodesSnapshot) active() []*node {
	out := make([]*node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.isActive() {
			out = append(out, n)
		}
	}
	return out
}

// roundRobinNode returns the next node from active in round-robin order,
// used as the §4.4 fallback when a key's partition slot is unpopulated. It
// returns nil if active is empty.
func (c *Cluster) roundRobinNode(active []*node) *node {
	if len(active) == 0 {
		return nil
	}
	i := c.routeRR.Add(1) - 1
	return active[int(i)%len(active)]
}

// gcEntry is one deferred release scheduled by a copy-on-write publication.
// The tend loop drains these at the start of the next iteration, giving any
// reader that observed the old pointer time to finish reserving it first.
type gcEntry struct {
	snapshot *nodesSnapshot
	replaced []*node // nodes present in the old snapshot but not the new one
}

// publish installs newSnap as the cluster's current snapshot and schedules
// the previous one (plus its now-removed nodes) for deferred release. The
// atomic.Pointer.Store provides the store-fence + atomic pointer publication
// ordering the spec calls for: every write that built newSnap happens-before
// this Store, and every Load by a reader happens-after it or observes the
// old value, never a torn one.
func (c *Cluster) publish(newSnap *nodesSnapshot, removed []*node) {
	old := c.snapshot.Swap(newSnap)
	old.release() // drop the Cluster's own reference now that newSnap replaces it
	c.gcMu.Lock()
	c.gcList = append(c.gcList, gcEntry{snapshot: old, replaced: removed})
	c.gcMu.Unlock()
}

// drainGC releases gc-listed snapshots and, for any whose refcount has
// reached zero, releases the node references that were dropped in that
// publication. Called once per tend iteration, never concurrently with
// itself (the tend loop is single-threaded).
func (c *Cluster) drainGC() {
	c.gcMu.Lock()
	pending := c.gcList
	c.gcList = nil
	c.gcMu.Unlock()

	var keep []gcEntry
	for _, e := range pending {
		if e.snapshot.refCount.Load() > 0 {
			keep = append(keep, e)
			continue
		}
		for _, n := range e.replaced {
			n.release()
		}
	}
	if len(keep) > 0 {
		c.gcMu.Lock()
		c.gcList = append(c.gcList, keep...)
		c.gcMu.Unlock()
	}
}

// ReserveNodes returns the current nodes snapshot with its reference count
// incremented. Callers must call release when done.
func (c *Cluster) ReserveNodes() *nodesSnapshot {
	for {
		s := c.snapshot.Load()
		s.reserve()
		// No re-check that s is still installed: under the copy-on-write
		// discipline the pointer we loaded is never mutated in place, so
		// once reserved it is safe to use regardless of concurrent
		// publication.
		return s
	}
}
