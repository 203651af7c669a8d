package corekv

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/flinkv/corekv-go/pkg/corekv/protocol"
)

// infoCommand opens a transient socket to addr, sends a text info request
// framed per §4.5, reads until the response frame is complete or the
// deadline elapses, and returns the parsed key/value map.
func infoCommand(ctx context.Context, addr *net.TCPAddr, deadline time.Duration, keys ...string) (map[string]string, error) {
	d := net.Dialer{Timeout: deadline}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, wrapError(Connection, err)
	}
	defer conn.Close()

	return infoOverConn(conn, deadline, keys...)
}

// infoOverConn runs the info request/response exchange over an
// already-open connection, used both for transient seed lookups and the
// node's longer-lived tend-info socket.
func infoOverConn(conn net.Conn, deadline time.Duration, keys ...string) (map[string]string, error) {
	_ = conn.SetDeadline(time.Now().Add(deadline))
	defer conn.SetDeadline(time.Time{})

	req := protocol.EncodeInfoRequest(keys...)
	if _, err := conn.Write(req); err != nil {
		return nil, wrapError(Connection, err)
	}

	hdrBuf := make([]byte, protocol.FrameHeaderSize)
	if _, err := io.ReadFull(conn, hdrBuf); err != nil {
		if isTimeout(err) {
			return nil, newError(Timeout, "info response header: %v", err)
		}
		return nil, wrapError(Connection, err)
	}
	hdr, err := protocol.DecodeFrameHeader(hdrBuf)
	if err != nil {
		return nil, translateCodecErr(err)
	}

	body := make([]byte, hdr.Size)
	if _, err := io.ReadFull(conn, body); err != nil {
		if isTimeout(err) {
			return nil, newError(Timeout, "info response body: %v", err)
		}
		return nil, newError(Truncated, "info response body: %v", err)
	}

	return protocol.ParseInfoResponse(body), nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func translateCodecErr(err error) error {
	switch {
	case errors.Is(err, protocol.ErrProtocolVersion):
		return wrapError(ProtocolVersion, err)
	case errors.Is(err, protocol.ErrProtocolType):
		return wrapError(ProtocolType, err)
	case errors.Is(err, protocol.ErrTruncated):
		return wrapError(Truncated, err)
	case errors.Is(err, protocol.ErrDecompress):
		return wrapError(Decompress, err)
	default:
		return wrapError(ClientAbort, err)
	}
}
