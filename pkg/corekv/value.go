package corekv

import (
	"encoding/binary"
	"math"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// ParticleType mirrors the wire particle type tag of a Value.
type ParticleType = uint8

// Value is a tagged variant over the wire particle types a bin can carry.
// It replaces the dynamically-typed "value" objects of the original client
// with explicit Go types per the re-architecture guidance in §9.
type Value struct {
	Type ParticleType
	Int  int64
	F64  float64
	Str  string
	Blob []byte
	List []Value
	Map  map[string]Value
}

// decodeValue interprets raw wire bytes according to their particle type.
// Lists, maps and geojson are decoded only as opaque blobs here: the core's
// job is routing and transport, not full MessagePack/list decoding, which
// belongs to the higher-level record API this core hands records to.
func decodeValue(particleType uint8, raw []byte) Value {
	switch particleType {
	case protocol.ParticleInt:
		var v int64
		if len(raw) == 8 {
			v = int64(binary.BigEndian.Uint64(raw))
		}
		return Value{Type: particleType, Int: v}
	case protocol.ParticleDouble:
		var v float64
		if len(raw) == 8 {
			v = math.Float64frombits(binary.BigEndian.Uint64(raw))
		}
		return Value{Type: particleType, F64: v}
	case protocol.ParticleString:
		return Value{Type: particleType, Str: string(raw)}
	default:
		return Value{Type: particleType, Blob: raw}
	}
}
