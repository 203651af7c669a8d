package corekv

import "github.com/flinkv/corekv-go/pkg/corekv/protocol"

// Record is a single stored record's metadata and bins, as returned by a
// batch read.
type Record struct {
	Generation uint32
	TTL        uint32
	Bins       map[string]Value
}

// BatchResult is the per-offset outcome described in §3: either a record
// with Code==OK, or a non-OK code and a nil record. NotFound is carried as
// a result code here, never surfaced as the batch's aggregate error.
type BatchResult struct {
	Code   ResultCode
	Record *Record
}

func recordFromMessage(pm protocol.ParsedMessage) *Record {
	bins := make(map[string]Value, len(pm.Bins))
	for _, b := range pm.Bins {
		bins[b.Name] = decodeValue(b.ParticleType, b.Value)
	}
	return &Record{
		Generation: pm.Msg.Generation,
		TTL:        pm.Msg.RecordTTL,
		Bins:       bins,
	}
}
