package errors

import (
	"errors"
	"fmt"
	"strings"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*DecodeError)(nil)
	_ BridgeError = (*RequestError)(nil)
	_ BridgeError = (*MisuseError)(nil)
	_ BridgeError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrBridgeNotStarted indicates the bridge has not been started.
	ErrBridgeNotStarted = errors.New("bridge not started")

	// ErrBridgeAlreadyStarted indicates Start was called twice.
	ErrBridgeAlreadyStarted = errors.New("bridge already started")

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrNoTransport indicates neither a transport nor an engine executable was configured.
	ErrNoTransport = errors.New("no transport configured")

	// ErrDispatcherStopped indicates the dispatcher has stopped.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrRequestTimeout indicates an outbound request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrRequestCanceled indicates the remote side answered a request with Canceled.
	ErrRequestCanceled = errors.New("request canceled")

	// ErrNotRequest indicates a reply operation was attempted on a non-request message.
	ErrNotRequest = errors.New("message is not a request")

	// ErrNilCallback indicates a nil cancellation observer was registered.
	ErrNilCallback = errors.New("cancellation callback is nil")

	// ErrNilRejection indicates Reject was called with a nil error.
	ErrNilRejection = errors.New("reject called with nil error")

	// ErrDuplicateCorrelationID indicates a correlation id is already live.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

	// ErrNotEnvelope indicates a frame does not carry the envelope prefix.
	ErrNotEnvelope = errors.New("frame is not an envelope")

	// ErrUnknownKind indicates the envelope kind is missing or not recognized.
	ErrUnknownKind = errors.New("unknown envelope kind")

	// ErrMissingCorrelationID indicates a correlated kind arrived without a correlation id.
	ErrMissingCorrelationID = errors.New("missing correlation id")

	// ErrTransportNotReady indicates the transport is not started or already closed.
	ErrTransportNotReady = errors.New("transport not ready")

	// ErrWriterClosed indicates the transport's write side was closed,
	// typically after a write was abandoned on context cancellation.
	ErrWriterClosed = errors.New("transport writer closed")

	// ErrFrameDelimiter indicates a frame contains the line delimiter of a
	// newline-framed transport.
	ErrFrameDelimiter = errors.New("frame contains line delimiter")
)

// DecodeError indicates a frame could not be decoded into an envelope.
// It preserves the raw frame for diagnostics.
type DecodeError struct {
	RawFrame string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *DecodeError) IsBridgeError() bool { return true }

// RequestError is an application error carried across the channel in an
// Error envelope. Origin fields describe the call site that rejected the
// request; RawInput holds the inbound frame that caused it.
type RequestError struct {
	Message      string
	OriginMember string
	OriginFile   string
	OriginLine   int
	RawInput     string
	Err          error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.OriginMember == "" && e.OriginFile == "" {
		return "request failed: " + msg
	}

	var b strings.Builder

	b.WriteString("request failed: ")
	b.WriteString(msg)
	b.WriteString(" (")
	b.WriteString(originOr(e.OriginMember, "<unknown>"))
	b.WriteString(" at ")
	b.WriteString(originOr(e.OriginFile, "unknown_file"))
	fmt.Fprintf(&b, ":%d)", e.OriginLine)

	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *RequestError) IsBridgeError() bool { return true }

func originOr(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}

// MisuseError indicates a programmer error at the consumer boundary, such as
// responding to a plain message. It is returned synchronously to the caller.
type MisuseError struct {
	Op  string
	Err error
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MisuseError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *MisuseError) IsBridgeError() bool { return true }

// ProcessError indicates the engine host process exited abnormally.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine process exited with code %d: %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("engine process exited with code %d", e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProcessError) IsBridgeError() bool { return true }
