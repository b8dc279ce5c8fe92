package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alangmartini/godlyd/internal/codec"
)

// WriteMessage JSON-encodes v and writes it as one length-prefixed frame.
// Used for any value with no binary fast path.
func WriteMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: marshal message: %w", err)
	}
	return codec.WriteLengthPrefixed(w, payload)
}

// ReadMessage reads one length-prefixed frame and JSON-decodes it into v.
// Returns (false, nil) on a clean EOF.
func ReadMessage(r io.Reader, v any) (bool, error) {
	payload, err := codec.ReadLengthPrefixed(r)
	if err != nil {
		return false, err
	}
	if payload == nil {
		return false, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("protocol: unmarshal message: %w", err)
	}
	return true, nil
}

// WriteRequest writes a Request, taking the binary fast path for Write.
func WriteRequest(w io.Writer, req *Request) error {
	if req.Type == RequestWrite {
		payload, err := codec.EncodeBinaryFrame(codec.TagRequestWrite, req.ID, req.Data)
		if err != nil {
			return fmt.Errorf("protocol: encode write frame: %w", err)
		}
		return codec.WriteLengthPrefixed(w, payload)
	}
	return WriteMessage(w, req)
}

// ReadRequest reads one Request, decoding the binary Write fast path when
// present. Returns (nil, nil) on clean EOF.
func ReadRequest(r io.Reader) (*Request, error) {
	payload, err := codec.ReadLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	if codec.IsJSONPayload(payload) {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal request: %w", err)
		}
		return &req, nil
	}
	frame, err := codec.DecodeBinaryFrame(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode request frame: %w", err)
	}
	if frame.Tag != codec.TagRequestWrite {
		return nil, fmt.Errorf("%w: tag 0x%02x", codec.ErrUnknownTag, frame.Tag)
	}
	return &Request{Type: RequestWrite, ID: frame.SessionID, Data: frame.Data}, nil
}

// WriteDaemonMessage writes a DaemonMessage, taking the binary fast path
// for Event.Output and Response.Buffer.
func WriteDaemonMessage(w io.Writer, msg *DaemonMessage) error {
	switch {
	case msg.Kind == DaemonMessageEvent && msg.Event != nil && msg.Event.Type == EventOutput:
		payload, err := codec.EncodeBinaryFrame(codec.TagEventOutput, msg.Event.SessionID, msg.Event.Data)
		if err != nil {
			return fmt.Errorf("protocol: encode output frame: %w", err)
		}
		return codec.WriteLengthPrefixed(w, payload)
	case msg.Kind == DaemonMessageResponse && msg.Response != nil && msg.Response.Type == ResponseBuffer:
		payload, err := codec.EncodeBinaryFrame(codec.TagResponseBuffer, msg.Response.SessionID, msg.Response.BufData)
		if err != nil {
			return fmt.Errorf("protocol: encode buffer frame: %w", err)
		}
		return codec.WriteLengthPrefixed(w, payload)
	default:
		return WriteMessage(w, msg)
	}
}

// ReadDaemonMessage reads one DaemonMessage, decoding either binary fast
// path. Returns (nil, nil) on clean EOF.
func ReadDaemonMessage(r io.Reader) (*DaemonMessage, error) {
	payload, err := codec.ReadLengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	if codec.IsJSONPayload(payload) {
		var msg DaemonMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal daemon message: %w", err)
		}
		return &msg, nil
	}
	frame, err := codec.DecodeBinaryFrame(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode daemon message frame: %w", err)
	}
	switch frame.Tag {
	case codec.TagEventOutput:
		return &DaemonMessage{Kind: DaemonMessageEvent, Event: &Event{
			Type: EventOutput, SessionID: frame.SessionID, Data: frame.Data,
		}}, nil
	case codec.TagResponseBuffer:
		return &DaemonMessage{Kind: DaemonMessageResponse, Response: &Response{
			Type: ResponseBuffer, SessionID: frame.SessionID, BufData: frame.Data,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", codec.ErrUnknownTag, frame.Tag)
	}
}
