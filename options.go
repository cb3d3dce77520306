package enginebridge

import (
	"log/slog"
	"time"
)

// Option configures BridgeOptions using the functional options pattern.
type Option func(*BridgeOptions)

// applyOptions applies functional options to a BridgeOptions struct.
func applyOptions(opts []Option) *BridgeOptions {
	options := &BridgeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *BridgeOptions) {
		o.Logger = logger
	}
}

// WithTransport injects the transport frames travel over.
// It takes precedence over WithEngine.
func WithTransport(transport Transport) Option {
	return func(o *BridgeOptions) {
		o.Transport = transport
	}
}

// ===== Protocol =====

// WithFramePrefix sets the marker that distinguishes envelope frames from
// plain text frames. Both endpoints must agree on it.
func WithFramePrefix(prefix string) Option {
	return func(o *BridgeOptions) {
		o.FramePrefix = prefix
	}
}

// WithRequestTimeout bounds how long SendRequest waits for a reply.
// Zero waits indefinitely. When unset, ENGINEBRIDGE_REQUEST_TIMEOUT is used.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *BridgeOptions) {
		o.RequestTimeout = &timeout
	}
}

// WithPendingWarnThreshold sets the number of outstanding requests above
// which a warning is logged.
func WithPendingWarnThreshold(n int) Option {
	return func(o *BridgeOptions) {
		o.PendingWarnThreshold = n
	}
}

// ===== Engine Host =====

// WithEngine spawns the engine host at path and exchanges frames over its
// stdin and stdout.
func WithEngine(path string, args ...string) Option {
	return func(o *BridgeOptions) {
		o.EnginePath = path
		o.EngineArgs = args
	}
}

// WithEnv provides additional environment variables for the engine host.
// Repeated calls merge into the existing map.
func WithEnv(env map[string]string) Option {
	return func(o *BridgeOptions) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithCwd sets the working directory for the engine host.
func WithCwd(cwd string) Option {
	return func(o *BridgeOptions) {
		o.Cwd = cwd
	}
}

// WithStderr sets a callback for each line the engine host writes to stderr.
func WithStderr(handler func(string)) Option {
	return func(o *BridgeOptions) {
		o.Stderr = handler
	}
}
