package corekv

import (
	"context"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// directIndexer recovers the original-key offset for each message in a
// legacy direct-protocol batch response. Unlike the indexed protocol, the
// server does not echo a digest or explicit offset per message: responses
// arrive in the same order the digests were sent, so the offset is just a
// monotonically advancing counter over the request's digest list
// (cl_batch.c's positional matching, carried over as-is since the wire
// format gives us nothing richer to key on).
type directIndexer struct {
	offsets []int
	next    int
}

func (d *directIndexer) offsetFor() (int, bool) {
	if d.next >= len(d.offsets) {
		return 0, false
	}
	off := d.offsets[d.next]
	d.next++
	return off, true
}

// runDirectBatch sends one legacy-protocol request for a single-namespace
// group of keys and matches responses back to offsets positionally (§4.8.2).
// The caller has already verified every key in g shares one namespace.
func (c *Cluster) runDirectBatch(ctx context.Context, n *node, g *batchNode, keys []Key, digests [][20]byte, binNames []string, policy *BatchPolicy, results []BatchResult) error {
	namespace := keys[g.offsets[0]].Namespace

	digestList := make([][protocol.DigestSize]byte, len(g.offsets))
	for i, off := range g.offsets {
		digestList[i] = digests[off]
	}

	req := protocol.EncodeDirectBatchRequest(namespace, digestList, binNames, false)

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

	idx := &directIndexer{offsets: g.offsets}
	err = streamBatchResponse(conn, policy.timeout(), func(pm protocol.ParsedMessage) error {
		off, have := idx.offsetFor()
		if !have {
			return newError(UnexpectedKey, "direct batch response has more messages than requested keys")
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
