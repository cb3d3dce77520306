package enginebridge

import (
	"context"

	"github.com/wagiedev/enginebridge-go/internal/bridge"
	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/handler"
	"github.com/wagiedev/enginebridge-go/internal/protocol"
)

// bridgeWrapper wraps the internal bridge to adapt it to the public interface.
type bridgeWrapper struct {
	impl *bridge.Bridge
}

// Compile-time check that *bridgeWrapper implements the Bridge interface.
var _ Bridge = (*bridgeWrapper)(nil)

// newBridgeImpl creates the internal bridge implementation.
func newBridgeImpl() Bridge {
	return &bridgeWrapper{impl: bridge.New()}
}

// Start starts the transport and begins dispatching frames.
func (b *bridgeWrapper) Start(ctx context.Context, opts ...Option) error {
	return b.impl.Start(ctx, applyOptions(opts))
}

// Subscribe registers a listener for envelopes matching filter.
func (b *bridgeWrapper) Subscribe(filter Filter, cb Callback) Token {
	return b.impl.Listeners().Subscribe(filter, cb)
}

// OnMessage registers fn for messages with topic id.
func (b *bridgeWrapper) OnMessage(id string, fn func(*Handler)) Token {
	filter := Filter{Kinds: []Kind{envelope.KindMessage}, ID: id}

	return b.impl.Listeners().Subscribe(filter, func(h *handler.Handler) bool {
		fn(h)

		return false
	})
}

// OnRequest registers fn for requests with topic id.
func (b *bridgeWrapper) OnRequest(id string, fn func(*Handler) bool) Token {
	filter := Filter{Kinds: []Kind{envelope.KindRequest}, ID: id}

	return b.impl.Listeners().Subscribe(filter, fn)
}

// OnText registers fn for frames that do not carry an envelope.
func (b *bridgeWrapper) OnText(fn func(frame string)) Token {
	return b.impl.Listeners().SubscribeText(fn)
}

// Unsubscribe removes a listener.
func (b *bridgeWrapper) Unsubscribe(token Token) bool {
	return b.impl.Listeners().Unsubscribe(token)
}

// SendMessage sends a fire-and-forget message.
func (b *bridgeWrapper) SendMessage(ctx context.Context, id string, payload any) error {
	return b.impl.SendMessage(ctx, id, payload)
}

// SendRequest sends a request and waits for its terminal reply.
func (b *bridgeWrapper) SendRequest(ctx context.Context, id string, payload any) (*protocol.Reply, error) {
	return b.impl.SendRequest(ctx, id, payload)
}

// Pending returns the inbound and outbound request counts.
func (b *bridgeWrapper) Pending() (inbound, outbound int) {
	return b.impl.Pending()
}

// Done returns a channel that is closed when the bridge stops.
func (b *bridgeWrapper) Done() <-chan struct{} {
	return b.impl.Done()
}

// Err returns the transport error that stopped the bridge, if any.
func (b *bridgeWrapper) Err() error {
	return b.impl.Err()
}

// Close resolves every open request and releases the transport.
func (b *bridgeWrapper) Close() error {
	return b.impl.Close()
}

// spawn runs fn on a goroutine that Close waits for.
func (b *bridgeWrapper) spawn(fn func()) {
	b.impl.Go(fn)
}

// spawner is implemented by bridges that track helper goroutines.
type spawner interface {
	spawn(fn func())
}

// goTracked runs fn on a goroutine tracked by b when it supports it.
func goTracked(b Bridge, fn func()) {
	if s, ok := b.(spawner); ok {
		s.spawn(fn)

		return
	}

	go fn()
}
