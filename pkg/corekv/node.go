package corekv

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// node is the server representation described in §3. Its connection pool is
// a bounded channel of idle sockets, directly descended from the teacher's
// PoolConnection TCP-tuning dance in pool.go, generalized from one
// hard-coded address per partition to a reference-counted peer that can be
// added and removed by the tend loop.
type node struct {
	cluster *Cluster

	name string // 20-byte server-assigned identifier

	addrMu    sync.Mutex
	addresses []*net.TCPAddr
	primary   atomic.Int32 // index into addresses

	refCount atomic.Int32
	active   atomic.Bool

	connLimit int
	connQ     chan net.Conn

	infoConn   net.Conn
	infoConnMu sync.Mutex

	failures            atomic.Uint32
	friends             atomic.Uint32
	refreshCount        uint32 // tend thread only, not shared
	partitionGeneration atomic.Uint32

	hasBatchIndex atomic.Bool
	hasReplicas   atomic.Bool
	hasDouble     atomic.Bool
	hasGeo        atomic.Bool
}

func newNode(cl *Cluster, name string, addr *net.TCPAddr, connLimit int) *node {
	n := &node{
		cluster:   cl,
		name:      name,
		addresses: []*net.TCPAddr{addr},
		connLimit: connLimit,
		connQ:     make(chan net.Conn, connLimit),
	}
	n.active.Store(true)
	n.refCount.Store(1)
	return n
}

// addAddress appends addr to the node's known sockaddrs if it is not already
// present, comparing by address bytes as the spec requires (§4.2).
func (n *node) addAddress(addr *net.TCPAddr) {
	n.addrMu.Lock()
	defer n.addrMu.Unlock()
	for _, a := range n.addresses {
		if a.IP.Equal(addr.IP) && a.Port == addr.Port {
			return
		}
	}
	n.addresses = append(n.addresses, addr)
}

func (n *node) primaryAddr() *net.TCPAddr {
	n.addrMu.Lock()
	defer n.addrMu.Unlock()
	idx := int(n.primary.Load())
	if idx >= len(n.addresses) {
		idx = 0
	}
	return n.addresses[idx]
}

// rotatePrimary advances the primary address index to the next candidate;
// it is a no-op when the node knows fewer than two addresses. Nothing in the
// package calls it: the tend loop does not rotate addresses on failure.
func (n *node) rotatePrimary() {
	n.addrMu.Lock()
	defer n.addrMu.Unlock()
	if len(n.addresses) < 2 {
		return
	}
	next := (int(n.primary.Load()) + 1) % len(n.addresses)
	n.primary.Store(int32(next))
}

// reserve increments the node's reference count. Any holder of a nodes
// snapshot may call this; the invariant in §4.3 guarantees the node is still
// live.
func (n *node) reserve() {
	n.refCount.Add(1)
}

// release decrements the reference count, freeing the connection pool once
// it reaches zero.
func (n *node) release() {
	if n.refCount.Add(-1) == 0 {
		n.closeAllConnections()
	}
}

func (n *node) deactivate() {
	n.active.Store(false)
}

func (n *node) isActive() bool {
	return n.active.Load()
}

// acquireConnection pops an idle socket from the pool, validating it has not
// gone stale, or dials a new one bounded by deadline. A one-byte read with
// a 1ms deadline is used to detect a server-initiated close or leftover
// bytes from a previous session; either condition discards the socket.
func (n *node) acquireConnection(ctx context.Context, deadline time.Duration) (net.Conn, error) {
	for {
		select {
		case c := <-n.connQ:
			if validateIdleConn(c) {
				return c, nil
			}
			c.Close()
			continue
		default:
		}
		break
	}

	d := net.Dialer{Timeout: deadline}
	conn, err := d.DialContext(ctx, "tcp", n.primaryAddr().String())
	if err != nil {
		return nil, wrapError(Connection, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}
	return conn, nil
}

// validateIdleConn performs a one-byte read with a 1ms deadline: only a
// timeout means the socket is idle and reusable; data present, or the peer
// closing, means the socket must be discarded rather than reused.
func validateIdleConn(c net.Conn) bool {
	_ = c.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer c.SetReadDeadline(time.Time{})

	buf := make([]byte, 1)
	n, err := c.Read(buf)
	if n > 0 {
		return false
	}
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

// releaseConnection returns a socket to the pool if there is room, else
// closes it.
func (n *node) releaseConnection(c net.Conn) {
	select {
	case n.connQ <- c:
	default:
		c.Close()
	}
}

func (n *node) closeAllConnections() {
	for {
		select {
		case c := <-n.connQ:
			c.Close()
		default:
			n.closeInfoConn()
			return
		}
	}
}

func (n *node) infoConnection(ctx context.Context, deadline time.Duration) (net.Conn, error) {
	n.infoConnMu.Lock()
	defer n.infoConnMu.Unlock()
	if n.infoConn != nil {
		return n.infoConn, nil
	}
	d := net.Dialer{Timeout: deadline}
	conn, err := d.DialContext(ctx, "tcp", n.primaryAddr().String())
	if err != nil {
		return nil, wrapError(Connection, err)
	}
	n.infoConn = conn
	return conn, nil
}

func (n *node) invalidateInfoConn() {
	n.infoConnMu.Lock()
	defer n.infoConnMu.Unlock()
	if n.infoConn != nil {
		n.infoConn.Close()
		n.infoConn = nil
	}
}

func (n *node) closeInfoConn() {
	n.invalidateInfoConn()
}

// NodeInfo is the read-only view of a node exposed to callers outside the
// package (diagnostics, the cmd/corekv-inspect tool).
type NodeInfo struct {
	Name          string
	Address       string
	Active        bool
	Failures      uint32
	Friends       uint32
	HasBatchIndex bool
}

func (n *node) info() NodeInfo {
	return NodeInfo{
		Name:          n.name,
		Address:       n.primaryAddr().String(),
		Active:        n.isActive(),
		Failures:      n.failures.Load(),
		Friends:       n.friends.Load(),
		HasBatchIndex: n.hasBatchIndex.Load(),
	}
}
