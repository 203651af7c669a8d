package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MsgHeaderSize is the fixed size of the cluster-message header.
const MsgHeaderSize = 22

// info1 bits.
const (
	Info1Read      uint8 = 1
	Info1GetAll    uint8 = 2
	Info1NoBinData uint8 = 4
	Info1BatchIdx  uint8 = 8
)

// info3 bits.
const (
	Info3Last uint8 = 1
)

// Field types.
const (
	FieldNamespace  uint8 = 0
	FieldSet        uint8 = 1
	FieldKey        uint8 = 2
	FieldDigestRipe uint8 = 4
	FieldDigestArr  uint8 = 6
	FieldBatchIndex uint8 = 0x11
)

// AsMsg is the decoded fixed-size cluster message header. Field/op payloads
// follow immediately after it in the frame body.
type AsMsg struct {
	HeaderSize     uint8
	Info1          uint8
	Info2          uint8
	Info3          uint8
	ResultCode     uint8
	Generation     uint32
	RecordTTL      uint32
	TransactionTTL uint32
	NFields        uint16
	NOps           uint16
}

// MsgParams carries the fields a caller sets when encoding a new request;
// everything else in AsMsg is either always zero for a request or filled in
// by the server in a response.
type MsgParams struct {
	Info1   uint8
	Info2   uint8
	Info3   uint8
	NFields uint16
	NOps    uint16
}

// EncodeMessageHeader writes MsgHeaderSize bytes to buf[0:22].
func EncodeMessageHeader(buf []byte, p MsgParams) {
	buf[0] = MsgHeaderSize
	buf[1] = p.Info1
	buf[2] = p.Info2
	buf[3] = p.Info3
	buf[4] = 0 // unused
	buf[5] = 0 // result_code, always 0 on request
	binary.BigEndian.PutUint32(buf[6:10], 0)
	binary.BigEndian.PutUint32(buf[10:14], 0)
	binary.BigEndian.PutUint32(buf[14:18], 0)
	binary.BigEndian.PutUint16(buf[18:20], p.NFields)
	binary.BigEndian.PutUint16(buf[20:22], p.NOps)
}

// DecodeMessageHeader parses the 22-byte cluster message header at the start
// of buf.
func DecodeMessageHeader(buf []byte) (AsMsg, error) {
	if len(buf) < MsgHeaderSize {
		return AsMsg{}, errors.WithStack(ErrTruncated)
	}
	return AsMsg{
		HeaderSize:     buf[0],
		Info1:          buf[1],
		Info2:          buf[2],
		Info3:          buf[3],
		ResultCode:     buf[5],
		Generation:     binary.BigEndian.Uint32(buf[6:10]),
		RecordTTL:      binary.BigEndian.Uint32(buf[10:14]),
		TransactionTTL: binary.BigEndian.Uint32(buf[14:18]),
		NFields:        binary.BigEndian.Uint16(buf[18:20]),
		NOps:           binary.BigEndian.Uint16(buf[20:22]),
	}, nil
}

// IsLast reports whether this message carries the sentinel LAST flag that
// terminates a batch response stream.
func (m AsMsg) IsLast() bool {
	return m.Info3&Info3Last != 0
}
