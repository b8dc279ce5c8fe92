package codec

import (
	"errors"
	"fmt"
)

// Binary frame type tags. A payload whose first byte equals one of these
// is a binary frame; a payload whose first byte is 0x7B ('{') is JSON.
// No other first byte is ever produced by this codec.
const (
	TagEventOutput   byte = 0x01
	TagRequestWrite  byte = 0x02
	TagResponseBuffer byte = 0x03

	jsonFirstByte byte = '{'
)

// ErrSessionIDTooLong is returned when a session id exceeds 255 bytes,
// the maximum that fits in the binary frame's length-prefixed id field.
var ErrSessionIDTooLong = errors.New("codec: session id exceeds 255 bytes")

// ErrTruncatedBinaryFrame is returned when a binary frame payload is
// shorter than its own header claims.
var ErrTruncatedBinaryFrame = errors.New("codec: truncated binary frame")

// ErrUnknownTag is returned when decoding a payload whose first byte is
// neither a known binary tag nor the JSON object marker.
var ErrUnknownTag = errors.New("codec: unknown frame tag")

// IsJSONPayload reports whether a decoded frame payload should be parsed
// as JSON rather than as a binary frame.
func IsJSONPayload(payload []byte) bool {
	return len(payload) > 0 && payload[0] == jsonFirstByte
}

// EncodeBinaryFrame lays out tag(1) | session_id_len(1) | session_id | data.
func EncodeBinaryFrame(tag byte, sessionID string, data []byte) ([]byte, error) {
	if len(sessionID) > 255 {
		return nil, ErrSessionIDTooLong
	}
	buf := make([]byte, 0, 2+len(sessionID)+len(data))
	buf = append(buf, tag, byte(len(sessionID)))
	buf = append(buf, sessionID...)
	buf = append(buf, data...)
	return buf, nil
}

// DecodedBinaryFrame is the parsed form of a binary frame payload.
type DecodedBinaryFrame struct {
	Tag       byte
	SessionID string
	Data      []byte
}

// DecodeBinaryFrame parses a payload previously produced by EncodeBinaryFrame.
func DecodeBinaryFrame(payload []byte) (DecodedBinaryFrame, error) {
	if len(payload) < 2 {
		return DecodedBinaryFrame{}, fmt.Errorf("%w: payload too short", ErrTruncatedBinaryFrame)
	}
	tag := payload[0]
	idLen := int(payload[1])
	if len(payload) < 2+idLen {
		return DecodedBinaryFrame{}, fmt.Errorf("%w: session id truncated", ErrTruncatedBinaryFrame)
	}
	sessionID := string(payload[2 : 2+idLen])
	data := payload[2+idLen:]
	return DecodedBinaryFrame{Tag: tag, SessionID: sessionID, Data: data}, nil
}
