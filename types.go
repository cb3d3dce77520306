package enginebridge

import (
	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/handler"
	"github.com/wagiedev/enginebridge-go/internal/listener"
	"github.com/wagiedev/enginebridge-go/internal/protocol"
)

// Re-export types from internal packages

// ===== Options and Configuration =====

// BridgeOptions configures the behavior of a bridge.
type BridgeOptions = config.Options

// ===== Envelopes =====

// Envelope is one wire-level message unit.
type Envelope = envelope.Envelope

// Kind tags an envelope with its role in the protocol.
type Kind = envelope.Kind

const (
	// KindMessage is fire-and-forget; no reply is possible.
	KindMessage = envelope.KindMessage
	// KindRequest expects exactly one terminal reply.
	KindRequest = envelope.KindRequest
	// KindResponse is a successful terminal reply.
	KindResponse = envelope.KindResponse
	// KindError is a failed terminal reply.
	KindError = envelope.KindError
	// KindCanceled is a cancellation signal or a canceled terminal reply.
	KindCanceled = envelope.KindCanceled
)

// DefaultFramePrefix marks envelope frames when no prefix is configured.
const DefaultFramePrefix = envelope.DefaultPrefix

// ErrorPayload is the wire form of a rejection.
type ErrorPayload = envelope.ErrorPayload

// ===== Handlers =====

// Handler represents one inbound envelope delivered to a listener.
type Handler = handler.Handler

// Deferral keeps a request handler open after its listener returns.
// Release it once the request has been answered or abandoned.
type Deferral = handler.Deferral

// CancelFunc observes a cancellation signal for a handler.
type CancelFunc = handler.CancelFunc

// Reply is the successful terminal reply to an outbound request.
type Reply = protocol.Reply

// ===== Listeners =====

// Filter selects which envelopes a subscription receives.
type Filter = listener.Filter

// Token identifies a subscription.
type Token = listener.Token

// Callback receives an inbound envelope. For requests, returning true
// claims ownership.
type Callback = listener.Callback

// TextCallback receives a frame that does not carry an envelope.
type TextCallback = listener.TextCallback
