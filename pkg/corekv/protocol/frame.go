// Package protocol implements the framed binary wire format shared by the
// info, cluster-message and batch-index requests the core dispatches.
package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Frame types carried in byte 1 of the 8-byte frame header.
const (
	TypeInfo           = 1
	TypeClusterMsg     = 3
	TypeClusterMsgComp = 4
)

// ProtoVersion is the only version this codec understands.
const ProtoVersion = 2

// FrameHeaderSize is the fixed size of the outer frame header.
const FrameHeaderSize = 8

// Errors returned by frame-level decoding. Wrapped with pkg/errors so callers
// get a stack at the point of failure, matching the "origin" requirement.
var (
	ErrProtocolVersion = errors.New("protocol: unsupported version")
	ErrProtocolType    = errors.New("protocol: unsupported frame type")
	ErrTruncated       = errors.New("protocol: truncated frame")
	ErrDecompress      = errors.New("protocol: decompress failed")
)

// FrameHeader is the decoded form of the 8-byte `{version, type, size}` frame
// prefix. Size is the number of body bytes that follow.
type FrameHeader struct {
	Version uint8
	Type    uint8
	Size    uint64
}

// EncodeFrameHeader writes the 8-byte frame header for a body of length size
// into buf[0:8]. buf must have at least FrameHeaderSize bytes.
func EncodeFrameHeader(buf []byte, typ uint8, size uint64) {
	word := (uint64(ProtoVersion) << 56) | (uint64(typ) << 48) | (size & 0x0000FFFFFFFFFFFF)
	binary.BigEndian.PutUint64(buf[:FrameHeaderSize], word)
}

// DecodeFrameHeader parses the first 8 bytes of buf. It fails with
// ErrTruncated if buf is short, ErrProtocolVersion if the version byte is
// unrecognized.
func DecodeFrameHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < FrameHeaderSize {
		return FrameHeader{}, errors.WithStack(ErrTruncated)
	}
	word := binary.BigEndian.Uint64(buf[:FrameHeaderSize])
	h := FrameHeader{
		Version: uint8(word >> 56),
		Type:    uint8(word >> 48),
		Size:    word & 0x0000FFFFFFFFFFFF,
	}
	if h.Version != ProtoVersion {
		return h, errors.WithStack(ErrProtocolVersion)
	}
	switch h.Type {
	case TypeInfo, TypeClusterMsg, TypeClusterMsgComp:
	default:
		return h, errors.WithStack(ErrProtocolType)
	}
	return h, nil
}
