package protocol

// ParsedMessage is one decoded cluster message from a batch response stream:
// its header, the digest carried in its digest field (if any), and its bins.
type ParsedMessage struct {
	Msg      AsMsg
	Digest   [DigestSize]byte
	HasDigest bool
	Bins     []Bin
}

// ParseNextMessage decodes one complete cluster message (header + fields +
// ops) starting at buf[0] and returns how many bytes it consumed. It is the
// building block the batch engine's stream parser calls in a loop until a
// message with the LAST flag is seen.
func ParseNextMessage(buf []byte) (ParsedMessage, int, error) {
	msg, err := DecodeMessageHeader(buf)
	if err != nil {
		return ParsedMessage{}, 0, err
	}
	pos := MsgHeaderSize

	var pm ParsedMessage
	pm.Msg = msg

	fit := NewFieldIter(buf[pos:], msg.NFields)
	for {
		f, ok, err := fit.Next()
		if err != nil {
			return ParsedMessage{}, 0, err
		}
		if !ok {
			break
		}
		if f.Type == FieldDigestRipe && len(f.Payload) >= DigestSize {
			copy(pm.Digest[:], f.Payload[:DigestSize])
			pm.HasDigest = true
		}
	}
	fieldsConsumed := len(buf[pos:]) - len(fit.Rest())
	pos += fieldsConsumed

	oit := NewOpIter(buf[pos:], msg.NOps)
	for {
		b, ok, err := oit.Next()
		if err != nil {
			return ParsedMessage{}, 0, err
		}
		if !ok {
			break
		}
		pm.Bins = append(pm.Bins, b)
	}
	opsConsumed := len(buf[pos:]) - len(oit.buf)
	pos += opsConsumed

	return pm, pos, nil
}
