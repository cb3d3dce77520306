package enginebridge

import "github.com/wagiedev/enginebridge-go/internal/errors"

// Re-export error types from internal package

// DecodeError indicates a frame could not be decoded into an envelope.
type DecodeError = errors.DecodeError

// RequestError is an application error returned by the remote endpoint.
type RequestError = errors.RequestError

// MisuseError indicates an operation that is not valid for a handler.
type MisuseError = errors.MisuseError

// ProcessError indicates the engine host process exited abnormally.
type ProcessError = errors.ProcessError

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrBridgeNotStarted indicates the bridge has not been started.
	ErrBridgeNotStarted = errors.ErrBridgeNotStarted

	// ErrBridgeAlreadyStarted indicates Start was called twice.
	ErrBridgeAlreadyStarted = errors.ErrBridgeAlreadyStarted

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.ErrBridgeClosed

	// ErrNoTransport indicates neither a transport nor an engine host was configured.
	ErrNoTransport = errors.ErrNoTransport

	// ErrDispatcherStopped indicates the bridge stopped while a request was in flight.
	ErrDispatcherStopped = errors.ErrDispatcherStopped

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrRequestCanceled indicates the receiver canceled a request.
	ErrRequestCanceled = errors.ErrRequestCanceled

	// ErrNotRequest indicates a reply operation on a plain message.
	ErrNotRequest = errors.ErrNotRequest

	// ErrTransportNotReady indicates the transport is not ready for frames.
	ErrTransportNotReady = errors.ErrTransportNotReady
)
