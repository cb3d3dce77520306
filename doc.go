// Package enginebridge provides a request/response protocol between a host
// application and an embedded game engine view.
//
// Both endpoints run a Bridge over a Transport that carries text frames: an
// in-memory pipe, a spawned engine host process, a byte stream, or a
// WebSocket. Frames that start with the configured prefix carry a JSON
// envelope; all other frames are delivered to text listeners untouched.
//
// # Basic Usage
//
// Register listeners, start the bridge, then send messages and requests:
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
//	    enginebridge.WithEngine("/opt/game/headless-player", "--bridge"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := bridge.SendRequest(ctx, "get_score", nil)
//
// Every inbound request is answered exactly once. If the listener that
// claims a request returns without answering, a fallback reply is sent for
// it. To answer later, call Defer on the handler and release the returned
// Deferral when done.
//
// # Typed Handlers
//
// HandleRequest decodes and validates payloads against a JSON Schema
// inferred from the request type, and answers with the handler's result:
//
//	_, err := enginebridge.HandleRequest(bridge, "spawn",
//	    func(ctx context.Context, req *SpawnRequest) (SpawnResult, error) {
//	        return world.Spawn(ctx, req)
//	    },
//	)
//
//	result, err := enginebridge.Call[SpawnResult](ctx, bridge, "spawn", req)
//
// # Cancellation
//
// Cancelling the context passed to SendRequest abandons the request and
// tells the receiver, whose handler context is canceled. Cancellation
// observers registered with Handler.OnCancel run once.
//
// # Error Handling
//
// Rejections arrive as *RequestError and carry the origin of the rejection:
//
//	_, err := bridge.SendRequest(ctx, "load_scene", "missing")
//	if reqErr, ok := errors.AsType[*enginebridge.RequestError](err); ok {
//	    log.Printf("%s at %s:%d", reqErr.Message, reqErr.OriginFile, reqErr.OriginLine)
//	}
//
// # Logging
//
// For detailed operation tracking, use WithLogger:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	err := bridge.Start(ctx, enginebridge.WithLogger(logger), enginebridge.WithTransport(t))
package enginebridge
