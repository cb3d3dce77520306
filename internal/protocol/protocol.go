package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/correlation"
	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/errors"
	"github.com/wagiedev/enginebridge-go/internal/handler"
	"github.com/wagiedev/enginebridge-go/internal/listener"
)

// cancelSignalTimeout bounds the best-effort write of a cancellation signal
// for an abandoned request.
const cancelSignalTimeout = time.Second

// Dispatcher routes frames between the transport and application code.
//
// The Dispatcher handles:
//   - Decoding inbound frames and dropping undecodable ones
//   - Fanning messages out to listeners
//   - Creating handlers for inbound requests and offering them to one owner
//   - Matching terminal replies to outbound requests awaiting them
//   - Relaying cancellation signals in both directions
//
// Frames are dispatched one at a time on a single read loop. Listener
// callbacks run on that loop and must not block; work that outlives the
// callback goes through handler.Handler.Defer.
type Dispatcher struct {
	log       *slog.Logger
	transport config.Transport
	codec     *envelope.Codec
	listeners *listener.Registry

	// Inbound requests by sender-assigned correlation id
	inbound *correlation.Table[*handler.Handler]

	// Outbound requests by locally generated correlation id
	outbound *correlation.Table[*pendingCall]

	requestTimeout time.Duration
	warnThreshold  int

	// Set while a table is above warnThreshold
	inboundCrowded  atomic.Bool
	outboundCrowded atomic.Bool

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	eg        errgroup.Group
}

// Compile-time verification that Dispatcher can emit handler replies.
var _ handler.Sender = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher for the transport in options.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations. Inbound envelopes are offered to listeners; a nil
// registry gets a fresh one. The transport must be started before calling
// Start().
func NewDispatcher(log *slog.Logger, options *config.Options, listeners *listener.Registry) *Dispatcher {
	if listeners == nil {
		listeners = listener.NewRegistry()
	}

	return &Dispatcher{
		log:            log.With("component", "protocol"),
		transport:      options.Transport,
		codec:          envelope.NewCodec(options.FramePrefix),
		listeners:      listeners,
		inbound:        correlation.NewTable[*handler.Handler](),
		outbound:       correlation.NewTable[*pendingCall](),
		requestTimeout: options.ResolveRequestTimeout(),
		warnThreshold:  options.ResolvePendingWarnThreshold(),
		done:           make(chan struct{}),
	}
}

// Listeners returns the registry inbound envelopes are fanned out to.
func (d *Dispatcher) Listeners() *listener.Registry {
	return d.listeners
}

// Codec returns the envelope codec used on the wire.
func (d *Dispatcher) Codec() *envelope.Codec {
	return d.codec
}

// PendingInbound returns the number of inbound requests not yet answered.
func (d *Dispatcher) PendingInbound() int {
	return d.inbound.Len()
}

// PendingOutbound returns the number of outbound requests awaiting a reply.
func (d *Dispatcher) PendingOutbound() int {
	return d.outbound.Len()
}

// closeDone safely closes the done channel exactly once.
func (d *Dispatcher) closeDone() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
func (d *Dispatcher) SetFatalError(err error) {
	d.errMu.Lock()

	if d.fatalErr == nil {
		d.fatalErr = err
	}

	d.errMu.Unlock()

	d.closeDone()
}

// FatalError returns the fatal error if one occurred.
func (d *Dispatcher) FatalError() error {
	d.errMu.RLock()
	defer d.errMu.RUnlock()

	return d.fatalErr
}

// Done returns a channel that is closed when the dispatcher stops.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Start begins reading frames from the transport and dispatching them.
//
// The read loop stops when the context is cancelled, the transport closes,
// or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.log.Debug("Starting dispatcher")

	frames, errs := d.transport.ReadFrames(ctx)

	d.eg.Go(func() error {
		return d.readLoop(ctx, frames, errs)
	})

	d.log.Info("Dispatcher started")

	return nil
}

// Stop shuts the dispatcher down.
//
// Every inbound request still open is closed, which emits its fallback
// reply, and every outbound request still waiting fails with
// ErrDispatcherStopped. It's safe to call Stop multiple times.
func (d *Dispatcher) Stop() {
	d.log.Debug("Stopping dispatcher")

	d.closeDone()
	d.closeOpenRequests()

	_ = d.eg.Wait()

	// The read loop may have inserted a request after the first drain
	d.closeOpenRequests()

	d.log.Info("Dispatcher stopped")
}

// closeOpenRequests closes every inbound handler still in the table, which
// emits its fallback reply.
func (d *Dispatcher) closeOpenRequests() {
	open := d.inbound.Drain()
	if len(open) > 0 {
		d.log.Warn("Closing unanswered requests on shutdown", "count", len(open))
	}

	for _, h := range open {
		h.Close()
	}
}

// Wait blocks until the read loop exits and returns the transport error
// that ended it, if any.
func (d *Dispatcher) Wait() error {
	return d.eg.Wait()
}

// SendEnvelope encodes env and writes it to the transport.
func (d *Dispatcher) SendEnvelope(ctx context.Context, env envelope.Envelope) error {
	frame, err := d.codec.Encode(env)
	if err != nil {
		return err
	}

	if err := d.transport.SendFrame(ctx, frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}

	return nil
}

// SendMessage sends a fire-and-forget message.
func (d *Dispatcher) SendMessage(ctx context.Context, id string, payload any) error {
	data, err := envelope.MarshalPayload(payload)
	if err != nil {
		return err
	}

	d.log.Debug("Sending message", "id", id)

	return d.SendEnvelope(ctx, envelope.Envelope{
		Kind:    envelope.KindMessage,
		ID:      id,
		Payload: data,
	})
}

// SendRequest sends a request and waits for its terminal reply.
//
// A Response yields a *Reply. An Error yields a *errors.RequestError
// rebuilt from the reply payload. A Canceled reply yields
// ErrRequestCanceled. If ctx ends or the configured timeout expires first,
// the request is abandoned and a cancellation signal is sent to the
// receiver.
func (d *Dispatcher) SendRequest(ctx context.Context, id string, payload any) (*Reply, error) {
	select {
	case <-d.done:
		return nil, errors.ErrDispatcherStopped
	default:
	}

	data, err := envelope.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	correlationID, call := d.outbound.Register(func(correlationID string) *pendingCall {
		return &pendingCall{
			id:    id,
			reply: make(chan envelope.Envelope, 1),
		}
	})

	d.warnIfCrowded("outbound", &d.outboundCrowded, d.outbound.Len())

	log := d.log.With("id", id, "correlation_id", correlationID)
	log.Debug("Sending request")

	err = d.SendEnvelope(ctx, envelope.Envelope{
		Kind:          envelope.KindRequest,
		ID:            id,
		CorrelationID: correlationID,
		Payload:       data,
	})
	if err != nil {
		d.outbound.Remove(correlationID)
		log.Error("Failed to send request", "error", err)

		return nil, fmt.Errorf("send request: %w", err)
	}

	var timeout <-chan time.Time

	if d.requestTimeout > 0 {
		timer := time.NewTimer(d.requestTimeout)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case reply := <-call.reply:
		log.Debug("Received reply", "kind", reply.Kind.String())

		return outcome(reply)

	case <-d.done:
		// Dispatcher stopped (possibly due to transport error) - fail fast
		if _, ok := d.outbound.Remove(correlationID); !ok {
			// The reply was claimed just before the stop
			return outcome(<-call.reply)
		}

		if err := d.FatalError(); err != nil {
			log.Warn("Transport error during request", "error", err)

			return nil, fmt.Errorf("transport error: %w", err)
		}

		log.Debug("Dispatcher stopped during request")

		return nil, errors.ErrDispatcherStopped

	case <-timeout:
		if reply, answered := d.abandon(ctx, call, correlationID); answered {
			return outcome(reply)
		}

		log.Warn("Request timed out", "timeout", d.requestTimeout)

		return nil, fmt.Errorf("%w after %s", errors.ErrRequestTimeout, d.requestTimeout)

	case <-ctx.Done():
		if reply, answered := d.abandon(ctx, call, correlationID); answered {
			return outcome(reply)
		}

		log.Debug("Request cancelled")

		return nil, ctx.Err()
	}
}

// abandon gives up on an outbound request and tells the receiver. If the
// reply was claimed concurrently it is returned instead.
func (d *Dispatcher) abandon(
	ctx context.Context,
	call *pendingCall,
	correlationID string,
) (envelope.Envelope, bool) {
	if _, ok := d.outbound.Remove(correlationID); !ok {
		// handleReply owns the entry; its send into the buffered channel is imminent
		return <-call.reply, true
	}

	// The caller's ctx is already done; a stalled peer must not hold it
	signalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelSignalTimeout)
	defer cancel()

	err := d.SendEnvelope(signalCtx, envelope.Envelope{
		Kind:          envelope.KindCanceled,
		ID:            call.id,
		CorrelationID: correlationID,
	})
	if err != nil {
		// Best effort: the receiver may already be gone
		d.log.Debug("Could not send cancellation signal", "correlation_id", correlationID, "error", err)
	}

	return envelope.Envelope{}, false
}

// readLoop reads frames from the transport and dispatches them.
func (d *Dispatcher) readLoop(
	ctx context.Context,
	frames <-chan string,
	errs <-chan error,
) error {
	defer d.closeDone()
	defer d.log.Debug("Dispatcher read loop stopped")

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				d.log.Debug("Frame channel closed")

				// A transport reports its failure before closing frames
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						d.log.Debug("Transport error in dispatcher", "error", err)
						d.SetFatalError(err)

						return err
					}
				default:
				}

				return nil
			}

			d.handleFrame(ctx, frame)

		case err, ok := <-errs:
			if !ok {
				// Keep draining frames; the transport closes both channels together
				errs = nil

				continue
			}

			if err != nil {
				d.log.Debug("Transport error in dispatcher", "error", err)
				d.SetFatalError(err)

				return err
			}

		case <-d.done:
			d.log.Debug("Dispatcher stop signal received")

			return nil

		case <-ctx.Done():
			d.log.Debug("Context cancelled in dispatcher read loop")

			return nil
		}
	}
}

// handleFrame decodes one frame and routes it by kind.
func (d *Dispatcher) handleFrame(ctx context.Context, frame string) {
	if !d.codec.IsEnvelope(frame) {
		d.handleText(frame)

		return
	}

	env, err := d.codec.Decode(frame)
	if err != nil {
		d.log.Warn("Dropping undecodable frame", "error", err, "frame", frame)

		return
	}

	switch env.Kind {
	case envelope.KindMessage:
		d.handleMessage(ctx, env, frame)

	case envelope.KindRequest:
		d.handleRequest(ctx, env, frame)

	case envelope.KindResponse, envelope.KindError:
		d.handleReply(env)

	case envelope.KindCanceled:
		d.handleCanceled(env)
	}
}

// handleText delivers a frame without an envelope to text listeners.
func (d *Dispatcher) handleText(frame string) {
	callbacks := d.listeners.Text()
	if len(callbacks) == 0 {
		d.log.Debug("Dropping text frame without listeners", "frame_len", len(frame))

		return
	}

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("Text listener panicked", "panic", r)
				}
			}()

			cb(frame)
		}()
	}
}

// handleMessage fans a message out to every matching listener.
func (d *Dispatcher) handleMessage(ctx context.Context, env envelope.Envelope, frame string) {
	d.log.Debug("Received message", "id", env.ID)

	h := handler.New(ctx, d.log, env, frame, d, nil)

	for _, cb := range d.listeners.Matching(env) {
		d.offer(cb, h)
	}

	if !h.IsDeferred() {
		h.Close()
	}
}

// handleRequest tracks an inbound request and offers it to one owner.
func (d *Dispatcher) handleRequest(ctx context.Context, env envelope.Envelope, frame string) {
	log := d.log.With("id", env.ID, "correlation_id", env.CorrelationID)
	log.Debug("Received request")

	h := handler.New(ctx, d.log, env, frame, d, d.release)

	if err := d.inbound.Insert(env.CorrelationID, h); err != nil {
		log.Warn("Discarding request with live correlation id", "error", err)
		h.Abort()

		return
	}

	d.warnIfCrowded("inbound", &d.inboundCrowded, d.inbound.Len())

	for _, cb := range d.listeners.Matching(env) {
		accepted, panicked := d.offer(cb, h)
		if panicked {
			h.Close()

			return
		}

		if !accepted {
			continue
		}

		if !h.IsDeferred() {
			h.Close()
		}

		return
	}

	// Nobody can service it; Close sends the fallback reply
	log.Warn("No listener accepted request")
	h.Close()
}

// offer invokes one listener, recovering from panics in application code.
func (d *Dispatcher) offer(cb listener.Callback, h *handler.Handler) (accepted, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Listener panicked",
				"id", h.ID(),
				"correlation_id", h.CorrelationID(),
				"panic", r,
			)

			accepted, panicked = false, true
		}
	}()

	return cb(h), false
}

// release drops a terminated handler from the inbound table.
func (d *Dispatcher) release(correlationID string) {
	d.inbound.Remove(correlationID)
}

// handleReply routes a terminal reply to the outbound request awaiting it.
func (d *Dispatcher) handleReply(env envelope.Envelope) {
	// Find and claim pending call atomically
	call, ok := d.outbound.Remove(env.CorrelationID)
	if !ok {
		d.log.Debug("Discarding reply for unknown request",
			"id", env.ID,
			"correlation_id", env.CorrelationID,
			"kind", env.Kind.String(),
		)

		return
	}

	// We own the call now; the channel is buffered so this never blocks
	call.reply <- env
}

// handleCanceled treats Canceled as a cancellation signal when it names a
// live inbound request, and as a terminal reply otherwise.
func (d *Dispatcher) handleCanceled(env envelope.Envelope) {
	if h, ok := d.inbound.Lookup(env.CorrelationID); ok {
		d.log.Debug("Received cancellation signal", "id", env.ID, "correlation_id", env.CorrelationID)
		h.Cancel()

		return
	}

	d.handleReply(env)
}

// warnIfCrowded logs once each time a table grows past the threshold.
// crowded latches the warning until the table shrinks back to it.
func (d *Dispatcher) warnIfCrowded(direction string, crowded *atomic.Bool, n int) {
	if n <= d.warnThreshold {
		crowded.Store(false)

		return
	}

	if crowded.CompareAndSwap(false, true) {
		d.log.Warn("Outstanding requests exceed threshold; requests may be left unresolved",
			"direction", direction,
			"pending", n,
			"threshold", d.warnThreshold,
		)
	}
}
