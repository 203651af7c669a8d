package corekv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// batchNode groups the offsets (indices into the caller's key slice) that
// route to one node, per §4.8 step 3. offsets is pre-sized to
// ceil(1.25*keys/nodes), clamped to at least 10, to avoid repeated growth
// for the common near-uniform distribution while not over-allocating for
// small batches.
type batchNode struct {
	node    *node
	offsets []int
}

func batchNodeCapacity(numKeys, numNodes int) int {
	if numNodes == 0 {
		numNodes = 1
	}
	cap := (numKeys*5 + numNodes*4 - 1) / (numNodes * 4) // ceil(1.25*numKeys/numNodes)
	if cap < 10 {
		cap = 10
	}
	return cap
}

// BatchGet fetches binNames (or every bin, if empty) for each key, returning
// one BatchResult per key in the same order. A key whose partition slot is
// unpopulated is sent to an active node chosen round-robin; it comes back as
// NoNodeForKey only when the snapshot has no active node at all. A key the
// server does not have comes back as NotFound. Neither is an aggregate
// error: BatchGet only returns a non-nil error for a transport, protocol, or
// namespace-mismatch failure that prevented a whole node's portion of the
// batch from completing.
func (c *Cluster) BatchGet(ctx context.Context, policy *BatchPolicy, keys []Key, binNames []string) ([]BatchResult, error) {
	if policy == nil {
		policy = DefaultBatchPolicy()
	}
	if len(keys) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { c.metrics.batchLatency(time.Since(start)) }()

	snap := c.ReserveNodes()
	defer snap.release()

	partitionCount := int(c.partitionCount.Load())
	if partitionCount == 0 {
		partitionCount = DefaultPartitionCount
	}

	results := make([]BatchResult, len(keys))
	digests := make([][20]byte, len(keys))

	groups := make(map[*node]*batchNode)
	var order []*node
	var activeNodes []*node

	for i := range keys {
		d := keys[i].Digest()
		digests[i] = d
		n, ok := c.parts.route(keys[i].Namespace, d, partitionCount)
		if !ok {
			// Partition slot unpopulated: fall back to round-robin over the
			// active nodes in the current snapshot, per §4.4.
			if activeNodes == nil {
				activeNodes = snap.active()
			}
			n = c.roundRobinNode(activeNodes)
			if n == nil {
				results[i] = BatchResult{Code: NoNodeForKey}
				continue
			}
		}
		g, ok := groups[n]
		if !ok {
			g = &batchNode{node: n, offsets: make([]int, 0, batchNodeCapacity(len(keys), len(snap.nodes)))}
			groups[n] = g
			order = append(order, n)
		}
		g.offsets = append(g.offsets, i)
	}

	if len(order) == 0 {
		return results, nil
	}

	// Upfront namespace check for any node that will use the direct
	// protocol: it carries a single namespace field for the whole
	// request, so a mixed-namespace group can't be sent at all (§4.8.2).
	for _, n := range order {
		g := groups[n]
		if !(n.hasBatchIndex.Load() && !policy.UseBatchDirect) {
			ns := keys[g.offsets[0]].Namespace
			for _, off := range g.offsets[1:] {
				if keys[off].Namespace != ns {
					return nil, newError(MultipleNamespaces, "node %s: direct batch protocol requires a single namespace", n.name)
				}
			}
		}
	}

	runOne := func(n *node) error {
		g := groups[n]
		if n.hasBatchIndex.Load() && !policy.UseBatchDirect {
			return c.runIndexedBatch(ctx, n, g, keys, digests, binNames, policy, results)
		}
		return c.runDirectBatch(ctx, n, g, keys, digests, binNames, policy, results)
	}

	var firstErr error
	var errClaimed atomic.Bool
	setErr := func(err error) {
		if err == nil {
			return
		}
		if errClaimed.CompareAndSwap(false, true) {
			firstErr = err
		}
	}

	if !policy.Concurrent || len(order) == 1 {
		for _, n := range order {
			setErr(runOne(n))
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(order))
		for _, n := range order {
			n := n
			c.pool.submit(func() {
				defer wg.Done()
				setErr(runOne(n))
			})
		}
		wg.Wait()
	}

	if firstErr != nil {
		c.metrics.batchError()
		return results, firstErr
	}
	return results, nil
}

func (c *Cluster) runIndexedBatch(ctx context.Context, n *node, g *batchNode, keys []Key, digests [][20]byte, binNames []string, policy *BatchPolicy, results []BatchResult) error {
	entries := make([]protocol.BatchKeyEntry, len(g.offsets))
	requested := make(map[int]bool, len(g.offsets))
	for i, off := range g.offsets {
		entries[i] = protocol.BatchKeyEntry{
			Offset:    uint32(off),
			Digest:    digests[off],
			ReadAttr:  protocol.Info1Read,
			Namespace: keys[off].Namespace,
			BinNames:  binNames,
		}
		requested[off] = true
	}

	req := protocol.EncodeIndexedBatchRequest(entries, policy.AllowInline, false)

	conn, err := n.acquireConnection(ctx, c.policy.ConnectTimeout)
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if ok {
			n.releaseConnection(conn)
		} else {
			conn.Close()
		}
	}()

	if _, err := conn.Write(req); err != nil {
		return wrapError(Connection, err)
	}

	err = streamBatchResponse(conn, policy.timeout(), func(pm protocol.ParsedMessage) error {
		// The server embeds each message's original offset in the
		// transaction_ttl slot (§4.8.1); the digest must match the digest
		// this client sent at that stated offset. Keying off the digest
		// alone would collapse a batch containing the same key at two
		// different offsets onto a single result.
		off := int(pm.Msg.TransactionTTL)
		if !requested[off] {
			return newError(UnexpectedKey, "indexed batch response offset %d was not requested from this node", off)
		}
		if !pm.HasDigest || pm.Digest != digests[off] {
			return newError(UnexpectedKey, "indexed batch response digest does not match the key requested at offset %d", off)
		}
		results[off] = resultFromMessage(pm)
		return nil
	})
	if err != nil {
		return err
	}

	ok = true
	return nil
}

func resultFromMessage(pm protocol.ParsedMessage) BatchResult {
	switch pm.Msg.ResultCode {
	case 0:
		return BatchResult{Code: OK, Record: recordFromMessage(pm)}
	case 2:
		return BatchResult{Code: NotFound}
	default:
		return BatchResult{Code: ServerError}
	}
}
