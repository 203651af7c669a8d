package corekv

import (
	"context"
	"testing"
	"time"

	"github.com/flinkv/corekv-go/internal/fakenode"
	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

func mustConnectedCluster(t *testing.T, fn *fakenode.Server) *Cluster {
	t.Helper()
	policy := DefaultClientPolicy()
	policy.Hosts = []Host{{Name: fn.Addr().IP.String(), Port: fn.Addr().Port}}
	policy.TendInterval = time.Second

	cl, err := NewCluster(policy)
	if err != nil {
		t.Fatalf("NewCluster: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(cl.Close)
	return cl
}

func putRecord(fn *fakenode.Server, k Key, bins map[string]fakenode.Bin) {
	fn.Put(k.Namespace, k.Digest(), &fakenode.Record{Generation: 1, TTL: 0, Bins: bins})
}

// ownAllPartitions configures fn's replicas-all response so it claims
// master ownership of every partition in namespace ns, which the tend loop
// needs to populate the routing table the batch engine reads.
func ownAllPartitions(fn *fakenode.Server, ns string) {
	bitmap := make([]byte, DefaultPartitionCount/8)
	for i := range bitmap {
		bitmap[i] = 0xFF
	}
	fn.SetReplicasAll(ns + ":1," + string(bitmap))
}

func TestBatchGetSingleNodeFoundAndNotFound(t *testing.T) {
	fn, err := fakenode.New("NODEA")
	if err != nil {
		t.Fatalf("fakenode.New: %v", err)
	}
	defer fn.Close()

	present := NewStringKey("test", "demo", "k1")
	missing := NewStringKey("test", "demo", "k2")
	putRecord(fn, present, map[string]fakenode.Bin{
		"greeting": {ParticleType: protocol.ParticleString, Value: []byte("hello")},
	})
	ownAllPartitions(fn, "test")

	cl := mustConnectedCluster(t, fn)

	results, err := cl.BatchGet(context.Background(), DefaultBatchPolicy(), []Key{present, missing}, nil)
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Code != OK || results[0].Record == nil {
		t.Fatalf("results[0] = %+v, want OK with a record", results[0])
	}
	if got := results[0].Record.Bins["greeting"].Str; got != "hello" {
		t.Errorf("bin value = %q, want hello", got)
	}
	if results[1].Code != NotFound {
		t.Errorf("results[1].Code = %v, want NotFound", results[1].Code)
	}
}

func TestBatchGetEmptyKeyList(t *testing.T) {
	fn, err := fakenode.New("NODEB")
	if err != nil {
		t.Fatalf("fakenode.New: %v", err)
	}
	defer fn.Close()

	cl := mustConnectedCluster(t, fn)

	results, err := cl.BatchGet(context.Background(), DefaultBatchPolicy(), nil, nil)
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil for empty key list", results)
	}
}

func TestBatchGetUsesDirectProtocolWhenNoBatchIndex(t *testing.T) {
	fn, err := fakenode.New("NODEC")
	if err != nil {
		t.Fatalf("fakenode.New: %v", err)
	}
	defer fn.Close()
	fn.SetBatchIndex(false)

	k := NewStringKey("test", "demo", "direct-key")
	putRecord(fn, k, map[string]fakenode.Bin{
		"n": {ParticleType: protocol.ParticleInt, Value: encodeInt64(42)},
	})
	ownAllPartitions(fn, "test")

	cl := mustConnectedCluster(t, fn)

	results, err := cl.BatchGet(context.Background(), DefaultBatchPolicy(), []Key{k}, nil)
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if results[0].Code != OK || results[0].Record.Bins["n"].Int != 42 {
		t.Fatalf("results[0] = %+v", results[0])
	}
}

// TestBatchGetDuplicateKeyAtTwoOffsetsWritesBoth guards against the indexed
// protocol reply matcher keying results purely by digest: the same key
// requested at two offsets must produce two OK results, not one OK result
// and one silently-zero-valued one.
func TestBatchGetDuplicateKeyAtTwoOffsetsWritesBoth(t *testing.T) {
	fn, err := fakenode.New("NODED")
	if err != nil {
		t.Fatalf("fakenode.New: %v", err)
	}
	defer fn.Close()

	k := NewStringKey("test", "demo", "dup-key")
	putRecord(fn, k, map[string]fakenode.Bin{
		"greeting": {ParticleType: protocol.ParticleString, Value: []byte("hi")},
	})
	ownAllPartitions(fn, "test")

	cl := mustConnectedCluster(t, fn)

	results, err := cl.BatchGet(context.Background(), DefaultBatchPolicy(), []Key{k, k}, nil)
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if r.Code != OK || r.Record == nil {
			t.Fatalf("results[%d] = %+v, want OK with a record", i, r)
		}
		if got := r.Record.Bins["greeting"].Str; got != "hi" {
			t.Errorf("results[%d] bin value = %q, want hi", i, got)
		}
	}
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}
