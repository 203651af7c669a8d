package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Operation opcodes relevant to batch reads. The core never issues writes.
const (
	OpRead uint8 = 1
)

// Particle types carried in a bin's wire representation.
const (
	ParticleNil     uint8 = 0
	ParticleInt     uint8 = 1
	ParticleDouble  uint8 = 2
	ParticleString  uint8 = 3
	ParticleBlob    uint8 = 4
	ParticleList    uint8 = 20
	ParticleMap     uint8 = 21
	ParticleGeoJSON uint8 = 23
)

// opHeaderSize is the fixed portion of an operation before name/value:
// op_sz(4) + op(1) + particle_type(1) + version(1) + name_sz(1).
const opHeaderSize = 8

// Bin is a decoded operation: a name and its raw, still-encoded value bytes.
type Bin struct {
	Name         string
	ParticleType uint8
	Value        []byte
}

// OpIter walks the length-prefixed operation list that follows a message's
// fields.
type OpIter struct {
	buf []byte
	n   uint16
	i   uint16
}

// NewOpIter constructs an iterator over n operations starting at buf[0].
func NewOpIter(buf []byte, n uint16) *OpIter {
	return &OpIter{buf: buf, n: n}
}

// Next returns the next bin, or ok=false once all n operations are consumed.
func (it *OpIter) Next() (Bin, bool, error) {
	if it.i >= it.n {
		return Bin{}, false, nil
	}
	if len(it.buf) < 4 {
		return Bin{}, false, errors.WithStack(ErrTruncated)
	}
	opSize := binary.BigEndian.Uint32(it.buf[0:4])
	if opSize < 4 || uint64(len(it.buf)) < 4+uint64(opSize) {
		return Bin{}, false, errors.WithStack(ErrTruncated)
	}
	body := it.buf[4 : 4+opSize]
	if len(body) < 4 {
		return Bin{}, false, errors.WithStack(ErrTruncated)
	}
	particleType := body[1]
	nameSz := body[3]
	if uint64(len(body)) < 4+uint64(nameSz) {
		return Bin{}, false, errors.WithStack(ErrTruncated)
	}
	name := string(body[4 : 4+nameSz])
	value := body[4+nameSz:]

	it.buf = it.buf[4+opSize:]
	it.i++
	return Bin{Name: name, ParticleType: particleType, Value: value}, true, nil
}

// EncodeReadOp appends a bare bin-name read operation (no value) to buf.
func EncodeReadOp(buf []byte, name string) []byte {
	opSize := uint32(4 + len(name))
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, opSize)
	buf = append(buf, hdr...)
	buf = append(buf, OpRead, ParticleNil, 0, uint8(len(name)))
	buf = append(buf, []byte(name)...)
	return buf
}
