// Package fakenode is an in-process stand-in for a single cluster node: it
// speaks just enough of the info and batch wire protocols for pkg/corekv's
// tend loop and batch engine to be exercised without a real server. It is
// deliberately a map-backed toy store, in the same spirit as the teacher's
// own internal/storage.MemoryStorage, rewired to answer the framed binary
// protocol this client actually speaks instead of a Redis-style text one.
package fakenode

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// Bin is one stored bin value, already in wire form.
type Bin struct {
	ParticleType uint8
	Value        []byte
}

// Record is one stored key: its generation, TTL, and bin set.
type Record struct {
	Generation uint32
	TTL        uint32
	Bins       map[string]Bin
}

// Server is a fake node: an address, a digest-keyed record store per
// namespace, and the feature flags the tend loop reads off "features"/
// "batch-index"/"services"/"partitions"/"replicas-all".
type Server struct {
	ln   net.Listener
	name string

	mu   sync.RWMutex
	data map[string]map[[protocol.DigestSize]byte]*Record // namespace -> digest -> record

	partitionCount int
	services       string
	replicasAll    string
	batchIndex     atomic.Bool

	closed atomic.Bool
	wg     sync.WaitGroup
}

// New starts a fake node listening on an OS-chosen loopback port.
func New(name string) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:             ln,
		name:           name,
		data:           make(map[string]map[[protocol.DigestSize]byte]*Record),
		partitionCount: 4096,
	}
	s.batchIndex.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

func (s *Server) Close() error {
	s.closed.Store(true)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// SetBatchIndex toggles whether this node advertises indexed-batch support.
func (s *Server) SetBatchIndex(v bool) {
	s.batchIndex.Store(v)
}

// SetServices sets the "services" info response value returned to peers
// doing tend-loop discovery, a comma-separated host:port list.
func (s *Server) SetServices(v string) {
	s.mu.Lock()
	s.services = v
	s.mu.Unlock()
}

// SetReplicasAll sets the raw "replicas-all" response value.
func (s *Server) SetReplicasAll(v string) {
	s.mu.Lock()
	s.replicasAll = v
	s.mu.Unlock()
}

// Put stores a record under namespace/digest, replacing it in-place.
func (s *Server) Put(namespace string, digest [protocol.DigestSize]byte, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[[protocol.DigestSize]byte]*Record)
		s.data[namespace] = ns
	}
	ns[digest] = rec
}

func (s *Server) lookup(namespace string, digest [protocol.DigestSize]byte) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, false
	}
	rec, ok := ns[digest]
	return rec, ok
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		hdrBuf := make([]byte, protocol.FrameHeaderSize)
		if _, err := io.ReadFull(conn, hdrBuf); err != nil {
			return
		}
		hdr, err := protocol.DecodeFrameHeader(hdrBuf)
		if err != nil {
			return
		}
		body := make([]byte, hdr.Size)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		switch hdr.Type {
		case protocol.TypeInfo:
			if err := s.handleInfo(conn, body); err != nil {
				return
			}
		case protocol.TypeClusterMsg:
			if err := s.handleBatch(conn, body); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) handleInfo(conn net.Conn, body []byte) error {
	var sb strings.Builder
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		switch line {
		case "node":
			sb.WriteString("node\t" + s.name + "\n")
		case "partitions":
			sb.WriteString("partitions\t" + strconv.Itoa(s.partitionCount) + "\n")
		case "partition-generation":
			sb.WriteString("partition-generation\t1\n")
		case "services":
			s.mu.RLock()
			svc := s.services
			s.mu.RUnlock()
			sb.WriteString("services\t" + svc + "\n")
		case "replicas-all":
			s.mu.RLock()
			ra := s.replicasAll
			s.mu.RUnlock()
			sb.WriteString("replicas-all\t" + ra + "\n")
		case "features":
			if s.batchIndex.Load() {
				sb.WriteString("features\tbatch-index\n")
			} else {
				sb.WriteString("features\t\n")
			}
		}
	}
	out := make([]byte, protocol.FrameHeaderSize+sb.Len())
	protocol.EncodeFrameHeader(out, protocol.TypeInfo, uint64(sb.Len()))
	copy(out[protocol.FrameHeaderSize:], sb.String())
	_, err := conn.Write(out)
	return err
}

// handleBatch answers both the indexed and legacy direct batch protocols,
// streaming one cluster-message frame per requested key followed by a final
// sentinel frame carrying the LAST flag.
func (s *Server) handleBatch(conn net.Conn, body []byte) error {
	msg, err := protocol.DecodeMessageHeader(body)
	if err != nil {
		return err
	}
	pos := protocol.MsgHeaderSize

	fit := protocol.NewFieldIter(body[pos:], msg.NFields)
	var fields []protocol.Field
	for {
		f, ok, err := fit.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fields = append(fields, f)
	}
	pos += len(body[pos:]) - len(fit.Rest())

	indexed := msg.Info1&protocol.Info1BatchIdx != 0
	if indexed {
		return s.answerIndexed(conn, fields)
	}
	return s.answerDirect(conn, fields, body[pos:], msg.NOps)
}

func (s *Server) answerIndexed(conn net.Conn, fields []protocol.Field) error {
	for _, f := range fields {
		if f.Type != protocol.FieldBatchIndex {
			continue
		}
		entries, _, err := protocol.DecodeBatchIndexField(f.Payload)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rec, ok := s.lookup(e.Namespace, e.Digest)
			if err := s.writeRecordMessage(conn, e.Digest, e.Offset, true, rec, ok, e.BinNames); err != nil {
				return err
			}
		}
	}
	return s.writeLastMessage(conn)
}

func (s *Server) answerDirect(conn net.Conn, fields []protocol.Field, opsBuf []byte, nOps uint16) error {
	var namespace string
	var digests [][protocol.DigestSize]byte
	for _, f := range fields {
		switch f.Type {
		case protocol.FieldNamespace:
			namespace = string(f.Payload)
		case protocol.FieldDigestArr:
			for i := 0; i+protocol.DigestSize <= len(f.Payload); i += protocol.DigestSize {
				var d [protocol.DigestSize]byte
				copy(d[:], f.Payload[i:i+protocol.DigestSize])
				digests = append(digests, d)
			}
		}
	}

	var binNames []string
	oit := protocol.NewOpIter(opsBuf, nOps)
	for {
		b, ok, err := oit.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		binNames = append(binNames, b.Name)
	}

	for _, d := range digests {
		rec, ok := s.lookup(namespace, d)
		if err := s.writeRecordMessage(conn, d, 0, false, rec, ok, binNames); err != nil {
			return err
		}
	}
	return s.writeLastMessage(conn)
}

// writeRecordMessage writes one cluster-message reply. offset is embedded in
// the transaction_ttl slot (§4.8.1); the direct protocol's positional
// matching doesn't need it and always passes 0.
func (s *Server) writeRecordMessage(conn net.Conn, digest [protocol.DigestSize]byte, offset uint32, withDigestField bool, rec *Record, found bool, binNames []string) error {
	var fieldsBuf []byte
	nFields := uint16(0)
	if withDigestField {
		hdr := make([]byte, 5)
		binary.BigEndian.PutUint32(hdr[0:4], uint32(protocol.DigestSize+1))
		hdr[4] = protocol.FieldDigestRipe
		fieldsBuf = append(fieldsBuf, hdr...)
		fieldsBuf = append(fieldsBuf, digest[:]...)
		nFields = 1
	}

	var opsBuf []byte
	nOps := uint16(0)
	resultCode := uint8(2) // NOT_FOUND
	var generation, ttl uint32
	if found {
		resultCode = 0
		generation = rec.Generation
		ttl = rec.TTL
		names := binNames
		if len(names) == 0 {
			for n := range rec.Bins {
				names = append(names, n)
			}
		}
		for _, n := range names {
			bin, ok := rec.Bins[n]
			if !ok {
				continue
			}
			opBody := make([]byte, 0, 4+len(n)+len(bin.Value))
			opBody = append(opBody, protocol.OpRead, bin.ParticleType, 0, uint8(len(n)))
			opBody = append(opBody, []byte(n)...)
			opBody = append(opBody, bin.Value...)
			opSize := make([]byte, 4)
			binary.BigEndian.PutUint32(opSize, uint32(len(opBody)))
			opsBuf = append(opsBuf, opSize...)
			opsBuf = append(opsBuf, opBody...)
			nOps++
		}
	}

	msg := make([]byte, protocol.MsgHeaderSize)
	msg[0] = protocol.MsgHeaderSize
	msg[5] = resultCode
	binary.BigEndian.PutUint32(msg[6:10], generation)
	binary.BigEndian.PutUint32(msg[10:14], ttl)
	binary.BigEndian.PutUint32(msg[14:18], offset)
	binary.BigEndian.PutUint16(msg[18:20], nFields)
	binary.BigEndian.PutUint16(msg[20:22], nOps)

	body := make([]byte, 0, len(msg)+len(fieldsBuf)+len(opsBuf))
	body = append(body, msg...)
	body = append(body, fieldsBuf...)
	body = append(body, opsBuf...)

	out := make([]byte, protocol.FrameHeaderSize+len(body))
	protocol.EncodeFrameHeader(out, protocol.TypeClusterMsg, uint64(len(body)))
	copy(out[protocol.FrameHeaderSize:], body)
	_, err := conn.Write(out)
	return err
}

func (s *Server) writeLastMessage(conn net.Conn) error {
	msg := make([]byte, protocol.MsgHeaderSize)
	msg[0] = protocol.MsgHeaderSize
	msg[3] = protocol.Info3Last

	out := make([]byte, protocol.FrameHeaderSize+len(msg))
	protocol.EncodeFrameHeader(out, protocol.TypeClusterMsg, uint64(len(msg)))
	copy(out[protocol.FrameHeaderSize:], msg)
	_, err := conn.Write(out)
	return err
}
