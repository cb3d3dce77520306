package handler

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// Sender emits envelopes onto the channel.
type Sender interface {
	SendEnvelope(ctx context.Context, env envelope.Envelope) error
}

// CancelFunc observes a cancellation signal for a handler.
type CancelFunc func(h *Handler)

// Handler represents one inbound envelope delivered to a consumer.
//
// For requests the Handler is owned by the dispatcher's correlation table
// until it terminates; consumers only hold a reference. For plain messages
// the reply operations fail with ErrNotRequest.
type Handler struct {
	log     *slog.Logger
	env     envelope.Envelope
	raw     string
	sender  Sender
	onClose func(correlationID string)

	sendCtx context.Context
	opCtx   context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	resolved  bool
	canceled  bool
	deferred  bool
	closed    bool
	deferral  *Deferral
	observers []CancelFunc
}

// New creates a handler for a decoded envelope.
//
// raw is the frame the envelope was decoded from; it is attached to
// rejections for diagnostics. onClose is invoked once when a request handler
// terminates and is expected to drop it from the correlation table.
func New(
	ctx context.Context,
	log *slog.Logger,
	env envelope.Envelope,
	raw string,
	sender Sender,
	onClose func(correlationID string),
) *Handler {
	opCtx, cancel := context.WithCancel(ctx)

	return &Handler{
		log: log.With(
			"component", "handler",
			"id", env.ID,
			"correlation_id", env.CorrelationID,
		),
		env:     env,
		raw:     raw,
		sender:  sender,
		onClose: onClose,
		sendCtx: context.WithoutCancel(ctx),
		opCtx:   opCtx,
		cancel:  cancel,
	}
}

// Envelope returns the inbound envelope.
func (h *Handler) Envelope() envelope.Envelope {
	return h.env
}

// ID returns the envelope topic.
func (h *Handler) ID() string {
	return h.env.ID
}

// CorrelationID returns the request's correlation id, or "" for messages.
func (h *Handler) CorrelationID() string {
	return h.env.CorrelationID
}

// IsRequest reports whether the envelope expects a reply.
func (h *Handler) IsRequest() bool {
	return h.env.Kind == envelope.KindRequest
}

// Decode unmarshals the inbound payload into v.
func (h *Handler) Decode(v any) error {
	return h.env.DecodePayload(v)
}

// Context returns a context that is canceled when a cancellation signal
// arrives or the handler terminates.
func (h *Handler) Context() context.Context {
	return h.opCtx
}

// IsCanceled reports whether a cancellation signal has been observed.
func (h *Handler) IsCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.canceled
}

// IsDeferred reports whether the consumer took ownership via Defer.
func (h *Handler) IsDeferred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.deferred
}

// IsResolved reports whether a terminal reply has been produced.
func (h *Handler) IsResolved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.resolved
}

// Respond sends a Response carrying payload and terminates the handler.
//
// Calling Respond on an already resolved handler is a no-op, whatever the
// payload. Calling it on a plain message returns a *errors.MisuseError.
func (h *Handler) Respond(payload any) error {
	if !h.IsRequest() {
		return &errors.MisuseError{Op: "respond", Err: errors.ErrNotRequest}
	}

	if h.IsResolved() {
		h.log.Debug("Ignoring response for resolved request")

		return nil
	}

	data, err := envelope.MarshalPayload(payload)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	if !h.claim() {
		h.log.Debug("Ignoring response for resolved request")

		return nil
	}

	defer h.terminate()

	return h.emit(h.env.Reply(envelope.KindResponse, data))
}

// Reject sends an Error reply describing err and terminates the handler.
//
// If err is or wraps a *errors.RequestError its origin metadata is kept;
// otherwise the caller of Reject is recorded as the origin. Calling Reject on
// an already resolved handler is a no-op.
func (h *Handler) Reject(err error) error {
	return h.reject(err, 3)
}

// RejectFrom is Reject with the origin taken skip frames above the caller.
// Helpers that reject on behalf of user code use it to point at that code.
func (h *Handler) RejectFrom(err error, skip int) error {
	return h.reject(err, skip+3)
}

// reject builds the Error reply. skip counts stack frames from errorPayload
// to the call site recorded as the origin.
func (h *Handler) reject(err error, skip int) error {
	if !h.IsRequest() {
		return &errors.MisuseError{Op: "reject", Err: errors.ErrNotRequest}
	}

	if err == nil {
		return &errors.MisuseError{Op: "reject", Err: errors.ErrNilRejection}
	}

	payload := h.errorPayload(err, skip)

	data, marshalErr := envelope.MarshalPayload(payload)
	if marshalErr != nil {
		return fmt.Errorf("reject: %w", marshalErr)
	}

	if !h.claim() {
		h.log.Debug("Ignoring rejection for resolved request")

		return nil
	}

	defer h.terminate()

	h.log.Warn("Request rejected", "error", payload.Message)

	return h.emit(h.env.Reply(envelope.KindError, data))
}

func (h *Handler) errorPayload(err error, skip int) envelope.ErrorPayload {
	var payload envelope.ErrorPayload

	if reqErr, ok := stderrors.AsType[*errors.RequestError](err); ok {
		payload = envelope.ErrorPayload{
			Message:      reqErr.Message,
			OriginMember: reqErr.OriginMember,
			OriginFile:   reqErr.OriginFile,
			OriginLine:   reqErr.OriginLine,
			RawInput:     reqErr.RawInput,
		}

		if payload.Message == "" && reqErr.Err != nil {
			payload.Message = reqErr.Err.Error()
		}
	} else {
		payload.Message = err.Error()
	}

	if payload.OriginMember == "" && payload.OriginFile == "" {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			payload.OriginFile = file
			payload.OriginLine = line

			if fn := runtime.FuncForPC(pc); fn != nil {
				payload.OriginMember = fn.Name()
			}
		}
	}

	if payload.RawInput == "" {
		payload.RawInput = h.raw
	}

	return payload
}

// Defer marks the handler as deferred and returns its scoped token.
// Repeated calls return the same token.
func (h *Handler) Defer() *Deferral {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deferred = true

	if h.deferral == nil {
		h.deferral = &Deferral{handler: h}
	}

	return h.deferral
}

// OnCancel registers a one-shot observer for the cancellation signal.
//
// Observers run in registration order. If the signal was already observed,
// cb runs immediately. Observers registered after termination never run.
func (h *Handler) OnCancel(cb CancelFunc) error {
	if cb == nil {
		return &errors.MisuseError{Op: "on cancel", Err: errors.ErrNilCallback}
	}

	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return nil
	}

	if !h.canceled {
		h.observers = append(h.observers, cb)
		h.mu.Unlock()

		return nil
	}

	h.mu.Unlock()

	h.notify(cb)

	return nil
}

// Cancel records a cancellation signal and runs pending observers.
//
// It does not terminate the handler. Returns false if the signal was already
// observed or the handler has terminated.
func (h *Handler) Cancel() bool {
	h.mu.Lock()

	if h.canceled || h.closed {
		h.mu.Unlock()

		return false
	}

	h.canceled = true
	observers := h.observers
	h.observers = nil

	h.mu.Unlock()

	h.log.Debug("Cancellation observed", "observers", len(observers))

	h.cancel()

	for _, cb := range observers {
		h.notify(cb)
	}

	return true
}

func (h *Handler) notify(cb CancelFunc) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Cancellation observer panicked", "panic", r)
		}
	}()

	cb(h)
}

// Close terminates the handler.
//
// If a request was never answered, a fallback reply is emitted: Canceled if
// a cancellation signal was observed, otherwise a Response without payload.
// Closing an already terminated handler is a no-op.
func (h *Handler) Close() {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return
	}

	fallback := h.IsRequest() && !h.resolved
	if fallback {
		h.resolved = true
	}

	canceled := h.canceled

	h.mu.Unlock()

	if fallback {
		kind := envelope.KindResponse
		if canceled {
			kind = envelope.KindCanceled
		}

		h.log.Warn("Missing request response, sending fallback reply", "reply", kind.String())

		_ = h.emit(h.env.Reply(kind, nil))
	}

	h.terminate()
}

// Abort terminates the handler without emitting any reply or touching the
// correlation table. It is used for requests that could not be tracked.
func (h *Handler) Abort() {
	h.mu.Lock()
	h.resolved = true
	h.closed = true
	h.observers = nil
	h.mu.Unlock()

	h.cancel()
}

// claim marks the handler resolved. Only the first caller wins.
func (h *Handler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resolved {
		return false
	}

	h.resolved = true

	return true
}

// terminate releases observers and removes the handler from its table.
func (h *Handler) terminate() {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return
	}

	h.closed = true
	h.observers = nil

	h.mu.Unlock()

	h.cancel()

	if h.IsRequest() && h.onClose != nil {
		h.onClose(h.env.CorrelationID)
	}
}

func (h *Handler) emit(env envelope.Envelope) error {
	if err := h.sender.SendEnvelope(h.sendCtx, env); err != nil {
		h.log.Error("Failed to send reply", "kind", env.Kind.String(), "error", err)

		return fmt.Errorf("send %s: %w", env.Kind, err)
	}

	h.log.Debug("Reply sent", "kind", env.Kind.String())

	return nil
}

// Deferral is the scoped token returned by Defer. Releasing it terminates
// the handler, emitting the fallback reply if none was sent.
type Deferral struct {
	handler *Handler
	once    sync.Once
}

// Handler returns the deferred handler.
func (d *Deferral) Handler() *Handler {
	return d.handler
}

// Release terminates the handler. Only the first call has an effect.
func (d *Deferral) Release() {
	d.once.Do(d.handler.Close)
}
