package corekv

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// streamBatchResponse reads one or more frames from conn, decompressing as
// needed, and calls handle for every non-sentinel cluster message until one
// carrying the LAST flag arrives (§4.8.1/.2). Messages may be split across
// frame boundaries; a ErrTruncated from the message parser is treated as
// "need more bytes" rather than a hard failure until the underlying read
// itself fails or times out.
func streamBatchResponse(conn net.Conn, deadline time.Duration, handle func(protocol.ParsedMessage) error) error {
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	defer conn.SetReadDeadline(time.Time{})

	var pending []byte
	hdrBuf := make([]byte, protocol.FrameHeaderSize)

	for {
		if _, err := io.ReadFull(conn, hdrBuf); err != nil {
			if isTimeout(err) {
				return newError(Timeout, "batch response header: %v", err)
			}
			return newError(Truncated, "batch response header: %v", err)
		}
		hdr, err := protocol.DecodeFrameHeader(hdrBuf)
		if err != nil {
			return translateCodecErr(err)
		}

		body := make([]byte, hdr.Size)
		if _, err := io.ReadFull(conn, body); err != nil {
			if isTimeout(err) {
				return newError(Timeout, "batch response body: %v", err)
			}
			return newError(Truncated, "batch response body: %v", err)
		}

		if hdr.Type == protocol.TypeClusterMsgComp {
			body, err = protocol.Inflate(body)
			if err != nil {
				return translateCodecErr(err)
			}
		}
		pending = append(pending, body...)

		for {
			if len(pending) == 0 {
				break
			}
			pm, consumed, err := protocol.ParseNextMessage(pending)
			if err != nil {
				if errors.Is(err, protocol.ErrTruncated) {
					break // need bytes from the next frame
				}
				return translateCodecErr(err)
			}
			pending = pending[consumed:]

			if pm.Msg.IsLast() {
				return nil
			}
			if err := handle(pm); err != nil {
				return err
			}
		}
	}
}
