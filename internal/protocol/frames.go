// Package protocol defines the wire format for the OpenClaw gateway
// WebSocket protocol: three frame shapes multiplexed over one channel,
// discriminated by a type tag, plus the typed parameter and payload shapes
// for the methods and events the console uses.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the gateway protocol generation this client speaks.
// The connect handshake offers it as both the minimum and maximum.
const ProtocolVersion = 3

// Frame type tags
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is a single wire frame. Which fields are populated depends on Type:
// requests carry ID/Method/Params, responses carry ID/OK and either Payload
// or Error, events carry Event/Payload.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// ErrorShape describes a gateway-supplied error in a response frame
type ErrorShape struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewRequest builds a request frame with marshaled params. A nil params value
// is sent as an empty object, matching what the gateway expects.
func NewRequest(id, method string, params any) (*Frame, error) {
	if params == nil {
		params = struct{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return &Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// Decode parses a raw transport message into a frame. An error here means
// the frame must be dropped; it is never fatal to the engine.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameTypeRequest, FrameTypeResponse, FrameTypeEvent:
		return &f, nil
	default:
		return nil, fmt.Errorf("decode frame: unknown type %q", f.Type)
	}
}

// Encode serializes the frame for the transport
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Ok reports whether a response frame indicates success
func (f *Frame) Ok() bool {
	return f.OK != nil && *f.OK
}

// ErrorMessage returns the gateway-supplied failure reason, or a generic
// fallback when the response carried none.
func (f *Frame) ErrorMessage() string {
	if f.Error != nil && f.Error.Message != "" {
		return f.Error.Message
	}
	return "failed"
}
