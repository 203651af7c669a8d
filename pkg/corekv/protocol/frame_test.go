package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, FrameHeaderSize)
	EncodeFrameHeader(buf, TypeClusterMsg, 1234)

	hdr, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Version != ProtoVersion {
		t.Errorf("version = %d, want %d", hdr.Version, ProtoVersion)
	}
	if hdr.Type != TypeClusterMsg {
		t.Errorf("type = %d, want %d", hdr.Type, TypeClusterMsg)
	}
	if hdr.Size != 1234 {
		t.Errorf("size = %d, want 1234", hdr.Size)
	}
}

func TestFrameHeaderRejectsBadVersion(t *testing.T) {
	buf := make([]byte, FrameHeaderSize)
	EncodeFrameHeader(buf, TypeClusterMsg, 0)
	buf[0] = 0x09 // version byte now wrong

	_, err := DecodeFrameHeader(buf)
	if !errors.Is(err, ErrProtocolVersion) {
		t.Fatalf("err = %v, want ErrProtocolVersion", err)
	}
}

func TestFrameHeaderRejectsBadType(t *testing.T) {
	buf := make([]byte, FrameHeaderSize)
	EncodeFrameHeader(buf, 0xEE, 0)

	_, err := DecodeFrameHeader(buf)
	if !errors.Is(err, ErrProtocolType) {
		t.Fatalf("err = %v, want ErrProtocolType", err)
	}
}

func TestFrameHeaderTruncated(t *testing.T) {
	_, err := DecodeFrameHeader([]byte{1, 2, 3})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestMessageHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, MsgHeaderSize)
	EncodeMessageHeader(buf, MsgParams{Info1: Info1Read | Info1BatchIdx, NFields: 3, NOps: 2})

	msg, err := DecodeMessageHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Info1 != Info1Read|Info1BatchIdx {
		t.Errorf("info1 = %x", msg.Info1)
	}
	if msg.NFields != 3 || msg.NOps != 2 {
		t.Errorf("nfields/nops = %d/%d, want 3/2", msg.NFields, msg.NOps)
	}
}

func TestMessageIsLast(t *testing.T) {
	m := AsMsg{Info3: Info3Last}
	if !m.IsLast() {
		t.Fatal("expected IsLast true")
	}
	m2 := AsMsg{}
	if m2.IsLast() {
		t.Fatal("expected IsLast false")
	}
}

func TestBatchIndexFieldRoundTrip(t *testing.T) {
	entries := []BatchKeyEntry{
		{Offset: 0, Digest: [20]byte{1, 2, 3}, ReadAttr: Info1Read, Namespace: "test", BinNames: []string{"bin1", "bin2"}},
		{Offset: 1, Digest: [20]byte{4, 5, 6}, Repeat: true},
	}
	payload := EncodeBatchIndexField(entries, true)

	decoded, allowInline, err := DecodeBatchIndexField(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !allowInline {
		t.Error("allowInline should round-trip true")
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d entries, want 2", len(decoded))
	}
	if decoded[0].Namespace != "test" || len(decoded[0].BinNames) != 2 {
		t.Errorf("entry 0 = %+v", decoded[0])
	}
	if !decoded[1].Repeat {
		t.Errorf("entry 1 should be Repeat")
	}
}

func TestReadOpRoundTrip(t *testing.T) {
	buf := EncodeReadOp(nil, "mybin")
	oit := NewOpIter(buf, 1)
	bin, ok, err := oit.Next()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if bin.Name != "mybin" {
		t.Errorf("name = %q", bin.Name)
	}
	if bin.ParticleType != ParticleNil {
		t.Errorf("particle type = %d", bin.ParticleType)
	}
}

func TestInflateZeroSize(t *testing.T) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, 0)

	out, err := Inflate(prefix)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("want empty, got %d bytes", len(out))
	}
}

func TestInflateRoundTrip(t *testing.T) {
	payload := []byte("some cluster message bytes, repeated repeated repeated")

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	frameBody := make([]byte, 8+compressed.Len())
	binary.BigEndian.PutUint64(frameBody[:8], uint64(len(payload)))
	copy(frameBody[8:], compressed.Bytes())

	out, err := Inflate(frameBody)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("inflate mismatch: got %q want %q", out, payload)
	}
}

func TestIndexedBatchRequestHeaderRoundTrip(t *testing.T) {
	entries := []BatchKeyEntry{{Offset: 0, Digest: [20]byte{9, 9, 9}, ReadAttr: Info1Read, Namespace: "ns", BinNames: nil}}
	req := EncodeIndexedBatchRequest(entries, false, false)

	hdr, err := DecodeFrameHeader(req[:FrameHeaderSize])
	if err != nil {
		t.Fatalf("decode frame header: %v", err)
	}
	body := req[FrameHeaderSize : FrameHeaderSize+int(hdr.Size)]

	msg, err := DecodeMessageHeader(body)
	if err != nil {
		t.Fatalf("decode message header: %v", err)
	}
	if msg.Info1&Info1BatchIdx == 0 {
		t.Error("expected Info1BatchIdx set")
	}
	if msg.NFields != 1 {
		t.Errorf("nfields = %d, want 1", msg.NFields)
	}
}

func TestParseNextMessageTruncatedIsRecoverable(t *testing.T) {
	buf := make([]byte, MsgHeaderSize-1)
	_, _, err := ParseNextMessage(buf)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
