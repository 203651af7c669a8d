package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DigestSize is the length in bytes of a record digest (RIPEMD-160 output).
const DigestSize = 20

// Field is a decoded `{size, type, payload}` triple. Payload aliases the
// input buffer; callers that retain it past the buffer's lifetime must copy.
type Field struct {
	Type    uint8
	Payload []byte
}

// FieldIter walks the length-prefixed field list following a message header.
type FieldIter struct {
	buf []byte
	n   uint16
	i   uint16
}

// NewFieldIter constructs an iterator over n fields starting at buf[0].
func NewFieldIter(buf []byte, n uint16) *FieldIter {
	return &FieldIter{buf: buf, n: n}
}

// Next returns the next field, or ok=false once all n fields are consumed.
func (it *FieldIter) Next() (Field, bool, error) {
	if it.i >= it.n {
		return Field{}, false, nil
	}
	if len(it.buf) < 4 {
		return Field{}, false, errors.WithStack(ErrTruncated)
	}
	size := binary.BigEndian.Uint32(it.buf[0:4])
	if size < 1 || uint64(len(it.buf)) < 4+uint64(size) {
		return Field{}, false, errors.WithStack(ErrTruncated)
	}
	typ := it.buf[4]
	payload := it.buf[5 : 4+size]
	it.buf = it.buf[4+size:]
	it.i++
	return Field{Type: typ, Payload: payload}, true, nil
}

// Rest returns the unconsumed tail of the buffer (the start of the op list).
func (it *FieldIter) Rest() []byte {
	return it.buf
}

// fieldEncoder accumulates length-prefixed fields into a growing buffer.
type fieldEncoder struct {
	buf   []byte
	count uint16
}

func (e *fieldEncoder) putString(typ uint8, s string) {
	e.put(typ, []byte(s))
}

func (e *fieldEncoder) put(typ uint8, payload []byte) {
	size := uint32(len(payload) + 1)
	hdr := make([]byte, 5)
	binary.BigEndian.PutUint32(hdr[0:4], size)
	hdr[4] = typ
	e.buf = append(e.buf, hdr...)
	e.buf = append(e.buf, payload...)
	e.count++
}

// BatchKeyEntry is one key within an indexed batch-index field.
type BatchKeyEntry struct {
	Offset    uint32
	Digest    [DigestSize]byte
	Repeat    bool
	ReadAttr  uint8
	Namespace string
	BinNames  []string
}

// EncodeBatchIndexField builds the composite batch-index field payload
// described in §4.8.1: a total count, an allow-inline byte, then one entry
// per key.
func EncodeBatchIndexField(entries []BatchKeyEntry, allowInline bool) []byte {
	buf := make([]byte, 0, 5+len(entries)*(4+DigestSize+1))
	hdr := make([]byte, 5)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(entries)))
	if allowInline {
		hdr[4] = 1
	}
	buf = append(buf, hdr...)

	for _, e := range entries {
		off := make([]byte, 4)
		binary.BigEndian.PutUint32(off, e.Offset)
		buf = append(buf, off...)
		buf = append(buf, e.Digest[:]...)
		if e.Repeat {
			buf = append(buf, 1)
			continue
		}
		buf = append(buf, 0, e.ReadAttr, 0, 0)
		nBins := make([]byte, 2)
		binary.BigEndian.PutUint16(nBins, uint16(len(e.BinNames)))
		buf = append(buf, nBins...)

		nsLen := make([]byte, 2)
		binary.BigEndian.PutUint16(nsLen, uint16(len(e.Namespace)))
		buf = append(buf, nsLen...)
		buf = append(buf, []byte(e.Namespace)...)

		for _, b := range e.BinNames {
			bLen := make([]byte, 2)
			binary.BigEndian.PutUint16(bLen, uint16(len(b)))
			buf = append(buf, bLen...)
			buf = append(buf, []byte(b)...)
		}
	}
	return buf
}

// DecodeBatchIndexField parses a payload produced by EncodeBatchIndexField.
// It is used by the fake-node test harness to play back a server.
func DecodeBatchIndexField(payload []byte) ([]BatchKeyEntry, bool, error) {
	if len(payload) < 5 {
		return nil, false, errors.WithStack(ErrTruncated)
	}
	count := binary.BigEndian.Uint32(payload[0:4])
	allowInline := payload[4] != 0
	p := payload[5:]

	entries := make([]BatchKeyEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(p) < 4+DigestSize+1 {
			return nil, false, errors.WithStack(ErrTruncated)
		}
		var e BatchKeyEntry
		e.Offset = binary.BigEndian.Uint32(p[0:4])
		copy(e.Digest[:], p[4:4+DigestSize])
		p = p[4+DigestSize:]
		repeat := p[0]
		p = p[1:]
		if repeat != 0 {
			e.Repeat = true
			entries = append(entries, e)
			continue
		}
		if len(p) < 5 {
			return nil, false, errors.WithStack(ErrTruncated)
		}
		e.ReadAttr = p[0]
		nBins := binary.BigEndian.Uint16(p[3:5])
		p = p[5:]

		if len(p) < 2 {
			return nil, false, errors.WithStack(ErrTruncated)
		}
		nsLen := binary.BigEndian.Uint16(p[0:2])
		p = p[2:]
		if uint16(len(p)) < nsLen {
			return nil, false, errors.WithStack(ErrTruncated)
		}
		e.Namespace = string(p[:nsLen])
		p = p[nsLen:]

		for b := uint16(0); b < nBins; b++ {
			if len(p) < 2 {
				return nil, false, errors.WithStack(ErrTruncated)
			}
			bLen := binary.BigEndian.Uint16(p[0:2])
			p = p[2:]
			if uint16(len(p)) < bLen {
				return nil, false, errors.WithStack(ErrTruncated)
			}
			e.BinNames = append(e.BinNames, string(p[:bLen]))
			p = p[bLen:]
		}
		entries = append(entries, e)
	}
	return entries, allowInline, nil
}
