// Package codec implements the length-prefixed wire framing used by the
// daemon's duplex IPC channel, plus the binary-tagged frame layout used for
// the hot-path variants that carry raw shell bytes.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest payload a single frame may carry.
const MaxFrameLength = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameLength.
var ErrFrameTooLarge = errors.New("codec: frame exceeds maximum length")

// WriteLengthPrefixed writes a 4-byte big-endian length followed by payload.
//
// It never flushes the underlying writer. On a Windows named pipe the
// equivalent of FlushFileBuffers blocks until the peer has drained the
// pipe, which deadlocks a goroutine that is also expected to keep reading.
// Byte-mode pipes deliver writes to the peer without an explicit flush.
func WriteLengthPrefixed(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("codec: write length prefix: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: write payload: %w", err)
	}
	return nil
}

// ReadLengthPrefixed reads one length-prefixed frame. A clean EOF while
// reading the length prefix returns (nil, nil) to signal an orderly close;
// any other EOF (mid-payload) is reported as an error.
func ReadLengthPrefixed(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("codec: read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("codec: read payload: %w", err)
	}
	return payload, nil
}

// BufferedReader wraps an io.Reader with a bufio.Reader sized for framed
// protocol traffic. The I/O goroutine owns this reader exclusively.
func BufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 64*1024)
}
