// Package corekv implements the core of a client for a distributed,
// partition-routed key-value store: cluster membership discovery, per-node
// connection pooling, and batch fan-out/aggregation over a framed binary
// protocol. It intentionally does not implement the full per-key API,
// query/aggregation, secondary-index DDL, or a secure-channel handshake —
// those are external collaborators that consume this core.
package corekv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Cluster is the process-wide handle: seeds, the current nodes snapshot,
// the partition map, the worker pool, and tend-thread controls. Multiple
// Cluster instances may coexist in one process — the teacher's global
// mutable singletons (batch queue, worker array) are fields here instead.
type Cluster struct {
	policy *ClientPolicy

	snapshot atomic.Pointer[nodesSnapshot]
	parts    *partitionMap

	partitionCount atomic.Int32
	routeRR        atomic.Uint32

	gcMu   sync.Mutex
	gcList []gcEntry

	pool *workerPool

	tendDone chan struct{}
	tendWake chan struct{}
	valid    atomic.Bool
	tendWg   sync.WaitGroup

	metrics *clusterMetrics

	logger Logger
}

// NewCluster constructs a Cluster from policy but does not start tending;
// call Connect to seed the cluster and start the tend loop.
func NewCluster(policy *ClientPolicy) (*Cluster, error) {
	if policy == nil {
		policy = DefaultClientPolicy()
	}
	if len(policy.Hosts) == 0 {
		return nil, newError(ClusterEmpty, "at least one seed host required")
	}
	if policy.TendInterval < time.Second {
		policy.TendInterval = time.Second
	}
	if policy.ConnsPerNode <= 0 {
		policy.ConnsPerNode = 8
	}
	if policy.WorkerPoolSize <= 0 {
		policy.WorkerPoolSize = 16
	}

	c := &Cluster{
		policy:   policy,
		parts:    newPartitionMap(),
		tendDone: make(chan struct{}),
		tendWake: make(chan struct{}, 1),
		logger:   defaultLogger(),
		metrics:  newClusterMetrics(),
	}
	c.snapshot.Store(newNodesSnapshot(nil))
	c.pool = newWorkerPool(policy.WorkerPoolSize, 1024)
	return c, nil
}

// Connect seeds the cluster synchronously (so callers see ClusterEmpty
// immediately on a bad seed list rather than after one silent tend tick)
// and then starts the background tend loop.
func (c *Cluster) Connect(ctx context.Context) error {
	c.valid.Store(true)

	if err := c.tend(ctx, true); err != nil {
		return err
	}

	c.tendWg.Add(1)
	go c.tendLoop()
	return nil
}

// Close stops the tend loop, closes the worker pool's task queue, and
// releases every node and snapshot reachable from the cluster. It waits for
// the tend loop to exit but not for the workers or for batches already in
// flight.
func (c *Cluster) Close() {
	if !c.valid.CompareAndSwap(true, false) {
		return
	}
	close(c.tendDone)
	c.tendWg.Wait()

	c.pool.shutdown()

	snap := c.snapshot.Swap(newNodesSnapshot(nil))
	for _, n := range snap.nodes {
		n.release()
	}
	c.drainGC()
}

// GetNodeNames returns the current snapshot's node names, reserving and
// releasing it internally. Useful for diagnostics and tests.
func (c *Cluster) GetNodeNames() []string {
	s := c.ReserveNodes()
	defer s.release()
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.name
	}
	return out
}

// Stats returns a point-in-time view of every known node, for the
// cmd/corekv-inspect diagnostic tool and tests.
func (c *Cluster) Stats() []NodeInfo {
	s := c.ReserveNodes()
	defer s.release()
	out := make([]NodeInfo, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.info()
	}
	return out
}

func (c *Cluster) isValid() bool {
	return c.valid.Load()
}

// findNodeByName returns the node in the current snapshot with the given
// server name, used to dedupe candidates discovered via services lists.
func (s *nodesSnapshot) findNodeByName(name string) *node {
	for _, n := range s.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

func (c *Cluster) String() string {
	return fmt.Sprintf("Cluster{nodes=%d}", len(c.snapshot.Load().nodes))
}
