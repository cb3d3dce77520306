package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// DefaultPrefix marks a text frame as carrying an envelope.
const DefaultPrefix = "@enginebridge@"

// Codec converts envelopes to and from transport text frames.
// The zero value uses DefaultPrefix.
type Codec struct {
	Prefix string
}

// NewCodec creates a codec using the given frame prefix, or DefaultPrefix if empty.
func NewCodec(prefix string) *Codec {
	return &Codec{Prefix: prefix}
}

func (c *Codec) prefix() string {
	if c == nil || c.Prefix == "" {
		return DefaultPrefix
	}

	return c.Prefix
}

// IsEnvelope reports whether the frame carries the envelope prefix.
func (c *Codec) IsEnvelope(frame string) bool {
	return strings.HasPrefix(frame, c.prefix())
}

// Encode serializes an envelope into a text frame.
func (c *Codec) Encode(env Envelope) (string, error) {
	if !env.Kind.Valid() {
		return "", fmt.Errorf("encode envelope: %w", errors.ErrUnknownKind)
	}

	if env.Kind.Correlated() && env.CorrelationID == "" {
		return "", fmt.Errorf("encode %s envelope: %w", env.Kind, errors.ErrMissingCorrelationID)
	}

	if env.Kind == KindMessage {
		env.CorrelationID = ""
	}

	env.Payload = normalizePayload(env.Payload)

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	return c.prefix() + string(data), nil
}

// Decode parses a text frame into an envelope.
//
// Returns a *errors.DecodeError if the frame lacks the prefix, is not a JSON
// object, has an unrecognized kind, or is a correlated kind without a
// correlation id.
func (c *Codec) Decode(frame string) (Envelope, error) {
	body, ok := strings.CutPrefix(frame, c.prefix())
	if !ok {
		return Envelope{}, &errors.DecodeError{RawFrame: frame, Err: errors.ErrNotEnvelope}
	}

	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Envelope{}, &errors.DecodeError{RawFrame: frame, Err: err}
	}

	if !env.Kind.Valid() {
		return Envelope{}, &errors.DecodeError{RawFrame: frame, Err: errors.ErrUnknownKind}
	}

	if env.Kind.Correlated() && env.CorrelationID == "" {
		return Envelope{}, &errors.DecodeError{
			RawFrame: frame,
			Err:      fmt.Errorf("%s envelope: %w", env.Kind, errors.ErrMissingCorrelationID),
		}
	}

	if env.Kind == KindMessage {
		env.CorrelationID = ""
	}

	env.Payload = normalizePayload(env.Payload)

	return env, nil
}
