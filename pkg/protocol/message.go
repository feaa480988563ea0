package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message type tags. The tag space is fixed; unknown tags are dropped by the
// receiver so new tags can be introduced server-side first.
const (
	TypeJoinedRoom  = "joined_room"
	TypeUpdateRoom  = "update_room"
	TypeLeftRoom    = "left_room"
	TypeSyncObjects = "sync_objects"
	TypeStream      = "stream"
	TypeInstantiate = "instantiate"
	TypeDestroy     = "destroy"
	TypePing        = "ping"
	TypePong        = "pong"

	TypeEventImmediate = "event_normal"
	TypeEventRelayed   = "event_server_sync"
	TypeEventBuffered  = "event_buffered"
)

// FrameSeparator joins batched envelopes into one websocket frame.
const FrameSeparator = '\n'

// Envelope is the outer message shape. Data stays opaque until the type tag
// has been routed.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode marshals a payload into an envelope with the given type tag.
func Encode(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s payload: %w", typ, err)
	}
	b, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s envelope: %w", typ, err)
	}
	return b, nil
}

// DecodeMessage parses a single envelope.
func DecodeMessage(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: envelope missing type tag")
	}
	return &env, nil
}

// SplitFrame splits a frame into the individual envelope lines it carries.
// Empty lines are skipped.
func SplitFrame(frame []byte) [][]byte {
	lines := bytes.Split(frame, []byte{FrameSeparator})
	out := lines[:0]
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) > 0 {
			out = append(out, line)
		}
	}
	return out
}

// JoinFrame joins encoded envelopes into one frame, mirroring SplitFrame.
func JoinFrame(messages [][]byte) []byte {
	return bytes.Join(messages, []byte{FrameSeparator})
}
