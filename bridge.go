package enginebridge

import (
	"context"
)

// Bridge is one endpoint of the request/response protocol between a host
// application and an embedded engine view.
//
// Both sides of a channel run a Bridge. Each can send fire-and-forget
// messages and requests, and each answers the requests it receives. Every
// inbound request is resolved exactly once: by the owning listener, or by a
// fallback reply when the listener returns without answering.
//
// Lifecycle: Bridges are single-use. After Close(), create a new one with
// NewBridge().
//
// Example usage:
//
//	bridge := enginebridge.NewBridge()
//	defer bridge.Close()
//
//	bridge.OnRequest("load_scene", func(h *enginebridge.Handler) bool {
//	    var scene string
//	    if err := h.Decode(&scene); err != nil {
//	        _ = h.Reject(err)
//	        return true
//	    }
//	    _ = h.Respond(map[string]any{"loaded": scene})
//	    return true
//	})
//
//	err := bridge.Start(ctx,
//	    enginebridge.WithLogger(slog.Default()),
//	    enginebridge.WithTransport(transport),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := bridge.SendRequest(ctx, "get_score", nil)
type Bridge interface {
	// Start starts the transport and begins dispatching frames.
	// Listeners may be registered before or after Start.
	// Returns ErrNoTransport if neither a transport nor an engine host is configured.
	Start(ctx context.Context, opts ...Option) error

	// Subscribe registers a listener for envelopes matching filter.
	// For requests, the first listener returning true owns the request.
	Subscribe(filter Filter, cb Callback) Token

	// OnMessage registers fn for messages with topic id. An empty id matches every topic.
	OnMessage(id string, fn func(*Handler)) Token

	// OnRequest registers fn for requests with topic id. An empty id matches every topic.
	// Returning true claims the request.
	OnRequest(id string, fn func(*Handler) bool) Token

	// OnText registers fn for frames that do not carry an envelope.
	OnText(fn func(frame string)) Token

	// Unsubscribe removes a listener. Returns false if the token is unknown.
	Unsubscribe(token Token) bool

	// SendMessage sends a fire-and-forget message.
	SendMessage(ctx context.Context, id string, payload any) error

	// SendRequest sends a request and waits for its terminal reply.
	// Cancelling ctx abandons the request and tells the receiver.
	// A rejection is returned as *RequestError; a cancellation by the
	// receiver as ErrRequestCanceled.
	SendRequest(ctx context.Context, id string, payload any) (*Reply, error)

	// Pending returns the number of inbound requests not yet answered and
	// of outbound requests awaiting a reply.
	Pending() (inbound, outbound int)

	// Done returns a channel that is closed when the bridge stops.
	Done() <-chan struct{}

	// Err returns the transport error that stopped the bridge, if any.
	Err() error

	// Close resolves every open request, stops dispatching and closes the transport.
	// After Close(), the bridge cannot be reused. Safe to call multiple times.
	Close() error
}

// NewBridge creates a new bridge.
//
// Register listeners, then call Start() with options:
//
//	bridge := NewBridge()
//	err := bridge.Start(ctx,
//	    WithLogger(slog.Default()),
//	    WithEngine("/opt/game/headless-player"),
//	)
func NewBridge() Bridge {
	return newBridgeImpl()
}
