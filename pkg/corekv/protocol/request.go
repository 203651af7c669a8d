package protocol

// EncodeIndexedBatchRequest builds a full frame body (message header +
// one batch-index field) for the indexed batch protocol (§4.8.1). It
// returns the complete frame, ready to write to the socket.
func EncodeIndexedBatchRequest(entries []BatchKeyEntry, allowInline, noBinData bool) []byte {
	fieldPayload := EncodeBatchIndexField(entries, allowInline)

	msg := make([]byte, MsgHeaderSize)
	info1 := Info1Read | Info1BatchIdx
	if noBinData {
		info1 |= Info1NoBinData
	}
	EncodeMessageHeader(msg, MsgParams{
		Info1:   info1,
		NFields: 1,
	})

	fieldHdr := make([]byte, 5)
	putU32(fieldHdr[0:4], uint32(len(fieldPayload)+1))
	fieldHdr[4] = FieldBatchIndex

	body := make([]byte, 0, len(msg)+len(fieldHdr)+len(fieldPayload))
	body = append(body, msg...)
	body = append(body, fieldHdr...)
	body = append(body, fieldPayload...)

	return frame(TypeClusterMsg, body)
}

// EncodeDirectBatchRequest builds a full frame for the legacy protocol
// (§4.8.2): one namespace field, one digest-array field, then the shared
// bin-name read operations.
func EncodeDirectBatchRequest(namespace string, digests [][DigestSize]byte, binNames []string, noBinData bool) []byte {
	var fields fieldEncoder
	fields.putString(FieldNamespace, namespace)

	digestPayload := make([]byte, 0, len(digests)*DigestSize)
	for _, d := range digests {
		digestPayload = append(digestPayload, d[:]...)
	}
	fields.put(FieldDigestArr, digestPayload)

	var ops []byte
	for _, b := range binNames {
		ops = EncodeReadOp(ops, b)
	}

	msg := make([]byte, MsgHeaderSize)
	info1 := Info1Read
	if noBinData || len(binNames) == 0 {
		info1 |= Info1GetAll
	}
	EncodeMessageHeader(msg, MsgParams{
		Info1:   info1,
		NFields: fields.count,
		NOps:    uint16(len(binNames)),
	})

	body := make([]byte, 0, len(msg)+len(fields.buf)+len(ops))
	body = append(body, msg...)
	body = append(body, fields.buf...)
	body = append(body, ops...)

	return frame(TypeClusterMsg, body)
}

func frame(typ uint8, body []byte) []byte {
	out := make([]byte, FrameHeaderSize+len(body))
	EncodeFrameHeader(out, typ, uint64(len(body)))
	copy(out[FrameHeaderSize:], body)
	return out
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
