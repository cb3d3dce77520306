package enginebridge

import (
	"context"
	"fmt"
)

// WithBridge manages bridge lifecycle with automatic cleanup.
//
// This helper creates a bridge, starts it with the provided options, executes
// the callback function, and ensures proper cleanup via Close() when done.
// Close resolves every request still open, so the callback should answer or
// abandon its requests before returning.
//
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := enginebridge.WithBridge(ctx, func(b enginebridge.Bridge) error {
//	    score, err := enginebridge.Call[int](ctx, b, "get_score", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println("score:", score)
//	    return nil
//	},
//	    enginebridge.WithLogger(log),
//	    enginebridge.WithEngine("/opt/game/headless-player"),
//	)
func WithBridge(ctx context.Context, fn func(Bridge) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	bridge := NewBridge()
	if err := bridge.Start(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	defer func() {
		if closeErr := bridge.Close(); closeErr != nil {
			log.Warn("failed to close bridge", "error", closeErr)
		}
	}()

	return fn(bridge)
}
