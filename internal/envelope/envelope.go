package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags an envelope with its role in the protocol.
type Kind int

const (
	// KindMessage is fire-and-forget; no reply is possible.
	KindMessage Kind = iota + 1
	// KindRequest expects exactly one terminal reply.
	KindRequest
	// KindResponse is a successful terminal reply.
	KindResponse
	// KindError is a failed terminal reply.
	KindError
	// KindCanceled is a cancellation signal or a canceled terminal reply.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindMessage:  "message",
	KindRequest:  "request",
	KindResponse: "response",
	KindError:    "error",
	KindCanceled: "canceled",
}

var kindsByName = map[string]Kind{
	"message":  KindMessage,
	"request":  KindRequest,
	"response": KindResponse,
	"error":    KindError,
	"canceled": KindCanceled,
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]

	return ok
}

// Correlated reports whether envelopes of this kind carry a correlation id.
func (k Kind) Correlated() bool {
	return k == KindRequest || k == KindResponse || k == KindError || k == KindCanceled
}

// Terminal reports whether the kind ends a request's lifecycle.
func (k Kind) Terminal() bool {
	return k == KindResponse || k == KindError || k == KindCanceled
}

// MarshalJSON encodes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("marshal kind %d: not a recognized kind", int(k))
	}

	return json.Marshal(s)
}

// UnmarshalJSON decodes a wire name. Unknown names leave the kind zero so
// the codec can report them.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("kind: %w", err)
	}

	*k = kindsByName[s]

	return nil
}

// Envelope is one wire-level message unit.
type Envelope struct {
	// Kind is the role of the envelope.
	Kind Kind `json:"kind"`

	// ID is the application-defined topic. Not unique.
	ID string `json:"id"`

	// CorrelationID links a request to its terminal reply. Empty for messages.
	CorrelationID string `json:"correlation_id,omitempty"` //nolint:tagliatelle // wire uses snake_case

	// Payload is arbitrary JSON, or nil when absent.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasPayload reports whether the envelope carries a payload.
func (e *Envelope) HasPayload() bool {
	return len(e.Payload) > 0
}

// DecodePayload unmarshals the payload into v. An absent payload leaves v untouched.
func (e *Envelope) DecodePayload(v any) error {
	if !e.HasPayload() {
		return nil
	}

	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return nil
}

// Reply builds a terminal reply envelope for this request.
func (e *Envelope) Reply(kind Kind, payload json.RawMessage) Envelope {
	return Envelope{
		Kind:          kind,
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Payload:       payload,
	}
}

// MarshalPayload converts an arbitrary value into an envelope payload.
// A nil value produces an absent payload; json.RawMessage is used as is.
func MarshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return normalizePayload(p), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return normalizePayload(data), nil
}

var jsonNull = []byte("null")

func normalizePayload(p json.RawMessage) json.RawMessage {
	if len(p) == 0 || bytes.Equal(bytes.TrimSpace(p), jsonNull) {
		return nil
	}

	return p
}

// ErrorPayload is the payload of an Error envelope.
//
// Wire format:
//
//	{
//	  "message": "bad input",
//	  "origin_member": "main.handleGreet",
//	  "origin_file": "greet.go",
//	  "origin_line": 42,
//	  "raw_input": "@enginebridge@{...}"
//	}
type ErrorPayload struct {
	Message      string `json:"message"`
	OriginMember string `json:"origin_member,omitempty"` //nolint:tagliatelle // wire uses snake_case
	OriginFile   string `json:"origin_file,omitempty"`   //nolint:tagliatelle // wire uses snake_case
	OriginLine   int    `json:"origin_line,omitempty"`   //nolint:tagliatelle // wire uses snake_case
	RawInput     string `json:"raw_input,omitempty"`     //nolint:tagliatelle // wire uses snake_case
}
