package protocol

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Inflate decompresses a CL_MSG_COMPRESSED body. The first 8 bytes are the
// big-endian declared inflated size; the remainder is a zlib stream. The
// declared size of zero is legal and yields an empty slice without touching
// the zlib reader, matching the "empty message list" boundary case.
func Inflate(body []byte) ([]byte, error) {
	if len(body) < 8 {
		return nil, errors.WithStack(ErrTruncated)
	}
	size := binary.BigEndian.Uint64(body[:8])
	if size == 0 {
		return []byte{}, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(body[8:]))
	if err != nil {
		return nil, errors.Wrap(ErrDecompress, err.Error())
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, errors.Wrap(ErrDecompress, err.Error())
	}
	return out, nil
}
