package corekv

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the wire digest requires this exact hash
)

// DefaultPartitionCount is used until the cluster learns the server's real
// partition count via an info "partitions" request.
const DefaultPartitionCount = 4096

// Key type tags mixed into the digest, matching the original wire format.
const (
	keyTypeInt    uint8 = 1
	keyTypeString uint8 = 3
	keyTypeBlob   uint8 = 4
)

// Key identifies a single record. UserKey is the already-serialized key
// value; KeyType says how to tag it for digest purposes.
type Key struct {
	Namespace string
	Set       string
	UserKey   []byte
	KeyType   uint8

	digest    [20]byte
	hasDigest bool
}

// NewStringKey builds a Key from a UTF-8 user key, the common case.
func NewStringKey(namespace, set, userKey string) Key {
	return Key{Namespace: namespace, Set: set, UserKey: []byte(userKey), KeyType: keyTypeString}
}

// NewIntKey builds a Key from an integer user key.
func NewIntKey(namespace, set string, userKey int64) Key {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(userKey))
	return Key{Namespace: namespace, Set: set, UserKey: buf, KeyType: keyTypeInt}
}

// NewBytesKey builds a Key from a raw byte-slice user key.
func NewBytesKey(namespace, set string, userKey []byte) Key {
	return Key{Namespace: namespace, Set: set, UserKey: userKey, KeyType: keyTypeBlob}
}

// Digest returns the 20-byte RIPEMD-160 digest of the key, computing and
// caching it on first use.
func (k *Key) Digest() [20]byte {
	if k.hasDigest {
		return k.digest
	}
	h := ripemd160.New()
	h.Write([]byte(k.Set))
	h.Write([]byte{k.KeyType})
	h.Write(k.UserKey)
	sum := h.Sum(nil)
	copy(k.digest[:], sum)
	k.hasDigest = true
	return k.digest
}

// partitionID maps a digest to a partition bucket using the first two bytes
// as a little-endian u16, modulo the cluster's partition count (§4.4).
func partitionID(digest [20]byte, partitionCount int) int {
	id := binary.LittleEndian.Uint16(digest[0:2])
	return int(id) % partitionCount
}

// partitionTable is one namespace's `partition id -> owning node` array,
// published as a whole via copy-on-write exactly like the nodes snapshot.
type partitionTable struct {
	masters []*node // length == partitionCount; nil entries are legal during transitions
}

// partitionMap holds one partitionTable per namespace, each independently
// swappable.
type partitionMap struct {
	mu   sync.RWMutex
	byNS map[string]*atomic.Pointer[partitionTable]
}

func newPartitionMap() *partitionMap {
	return &partitionMap{byNS: make(map[string]*atomic.Pointer[partitionTable])}
}

func (pm *partitionMap) tableFor(ns string) *atomic.Pointer[partitionTable] {
	pm.mu.RLock()
	p, ok := pm.byNS[ns]
	pm.mu.RUnlock()
	if ok {
		return p
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if p, ok := pm.byNS[ns]; ok {
		return p
	}
	p = &atomic.Pointer[partitionTable]{}
	pm.byNS[ns] = p
	return p
}

// setMaster updates a single partition's owning node for rank-0 (master)
// replicas. Higher ranks are accepted and ignored by the core: §4.4 only
// needs the master for routing.
func (pm *partitionMap) setMaster(ns string, partition int, n *node, count int) {
	ptr := pm.tableFor(ns)
	for {
		old := ptr.Load()
		var masters []*node
		if old != nil {
			masters = make([]*node, len(old.masters))
			copy(masters, old.masters)
		} else {
			masters = make([]*node, count)
		}
		if partition < 0 || partition >= len(masters) {
			return
		}
		masters[partition] = n
		next := &partitionTable{masters: masters}
		if ptr.CompareAndSwap(old, next) {
			return
		}
	}
}

// route returns the node owning the given key's partition, or the empty
// value and false if the slot is unpopulated (caller falls back to
// round-robin per §4.4).
func (pm *partitionMap) route(ns string, digest [20]byte, partitionCount int) (*node, bool) {
	ptr := pm.tableFor(ns)
	table := ptr.Load()
	if table == nil {
		return nil, false
	}
	id := partitionID(digest, partitionCount)
	if id >= len(table.masters) {
		return nil, false
	}
	n := table.masters[id]
	if n == nil || !n.isActive() {
		return nil, false
	}
	return n, true
}
