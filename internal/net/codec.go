package net

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Message is the wire envelope. Every frame, both directions, is a JSON
// object {"name": ..., "data": ...}; data is left raw until a handler binds
// it to its payload type.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// maxPacketNameLen bounds the name field; anything longer is garbage or an
// attack, never a real packet.
const maxPacketNameLen = 64

// EncodeMessage marshals an outbound envelope.
func EncodeMessage(name string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		raw = b
	}
	return json.Marshal(Message{Name: name, Data: raw})
}

// DecodeMessage parses an inbound frame and validates the envelope.
func DecodeMessage(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("frame has no name")
	}
	if len(m.Name) > maxPacketNameLen || !utf8.ValidString(m.Name) {
		return nil, fmt.Errorf("bad packet name")
	}
	return &m, nil
}
