package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// Reply is the successful terminal reply to an outbound request.
type Reply struct {
	// Envelope is the Response envelope as received.
	Envelope envelope.Envelope
}

// Payload returns the raw reply payload, or nil when absent.
func (r *Reply) Payload() json.RawMessage {
	return r.Envelope.Payload
}

// Decode unmarshals the reply payload into v.
func (r *Reply) Decode(v any) error {
	return r.Envelope.DecodePayload(v)
}

// pendingCall tracks an outbound request awaiting its terminal reply.
type pendingCall struct {
	id    string
	reply chan envelope.Envelope
}

// outcome converts a terminal reply into the caller's result.
func outcome(env envelope.Envelope) (*Reply, error) {
	switch env.Kind {
	case envelope.KindResponse:
		return &Reply{Envelope: env}, nil

	case envelope.KindError:
		return nil, requestError(env)

	case envelope.KindCanceled:
		return nil, fmt.Errorf("%s: %w", env.ID, errors.ErrRequestCanceled)

	default:
		return nil, fmt.Errorf("unexpected %s reply: %w", env.Kind, errors.ErrUnknownKind)
	}
}

// requestError reconstructs the structured error carried by an Error envelope.
func requestError(env envelope.Envelope) *errors.RequestError {
	var payload envelope.ErrorPayload

	if err := env.DecodePayload(&payload); err != nil || payload.Message == "" {
		var msg string
		if err := env.DecodePayload(&msg); err != nil {
			msg = string(env.Payload)
		}

		if msg == "" {
			msg = "request " + env.ID + " failed"
		}

		return &errors.RequestError{Message: msg}
	}

	return &errors.RequestError{
		Message:      payload.Message,
		OriginMember: payload.OriginMember,
		OriginFile:   payload.OriginFile,
		OriginLine:   payload.OriginLine,
		RawInput:     payload.RawInput,
	}
}
