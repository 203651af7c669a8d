package corekv

import "testing"

func TestDigestIsStableAndCached(t *testing.T) {
	k := NewStringKey("test", "demo", "stable-key")
	d1 := k.Digest()
	d2 := k.Digest()
	if d1 != d2 {
		t.Fatalf("digest changed between calls: %x vs %x", d1, d2)
	}

	k2 := NewStringKey("test", "demo", "stable-key")
	if k2.Digest() != d1 {
		t.Fatalf("same logical key produced a different digest")
	}
}

func TestDigestDiffersByKeyType(t *testing.T) {
	str := NewStringKey("test", "demo", "7")
	i := NewIntKey("test", "demo", 7)
	if str.Digest() == i.Digest() {
		t.Fatal("string key \"7\" and int key 7 must not collide on digest")
	}
}

func TestPartitionIDWithinRange(t *testing.T) {
	k := NewStringKey("test", "demo", "any-key")
	d := k.Digest()
	id := partitionID(d, DefaultPartitionCount)
	if id < 0 || id >= DefaultPartitionCount {
		t.Fatalf("partition id %d out of range [0,%d)", id, DefaultPartitionCount)
	}
}

func TestPartitionMapRouteMissingIsFalse(t *testing.T) {
	pm := newPartitionMap()
	k := NewStringKey("test", "demo", "unrouted")
	_, ok := pm.route("test", k.Digest(), DefaultPartitionCount)
	if ok {
		t.Fatal("expected route to report false before any setMaster call")
	}
}

func TestPartitionMapSetMasterThenRoute(t *testing.T) {
	pm := newPartitionMap()
	n := &node{name: "N1"}
	n.active.Store(true)

	k := NewStringKey("test", "demo", "routed-key")
	d := k.Digest()
	id := partitionID(d, DefaultPartitionCount)
	pm.setMaster("test", id, n, DefaultPartitionCount)

	got, ok := pm.route("test", d, DefaultPartitionCount)
	if !ok || got != n {
		t.Fatalf("route = %v, %v; want %v, true", got, ok, n)
	}
}

func TestPartitionMapRouteSkipsInactiveNode(t *testing.T) {
	pm := newPartitionMap()
	n := &node{name: "N2"}
	n.active.Store(false)

	k := NewStringKey("test", "demo", "inactive-owner")
	d := k.Digest()
	id := partitionID(d, DefaultPartitionCount)
	pm.setMaster("test", id, n, DefaultPartitionCount)

	_, ok := pm.route("test", d, DefaultPartitionCount)
	if ok {
		t.Fatal("route should not return a deactivated node")
	}
}
