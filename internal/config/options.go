package config

import (
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"
)

const (
	// RequestTimeoutEnv names the environment variable holding the default
	// outbound request timeout in seconds.
	RequestTimeoutEnv = "ENGINEBRIDGE_REQUEST_TIMEOUT"

	// DefaultPendingWarnThreshold is the table size above which a warning is logged.
	DefaultPendingWarnThreshold = 1024
)

// Options configures a bridge.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Transport is the channel frames travel over.
	// If nil, the engine host at EnginePath is spawned instead.
	Transport Transport

	// EnginePath is the engine host executable to spawn when no Transport
	// is set. Frames travel over its stdin and stdout.
	EnginePath string

	// EngineArgs are passed to the engine host executable.
	EngineArgs []string

	// Env provides additional environment variables for the engine host.
	Env map[string]string

	// Cwd sets the working directory for the engine host.
	Cwd string

	// Stderr is called with each line the engine host writes to stderr.
	Stderr func(string)

	// FramePrefix marks frames that carry an envelope.
	// Empty uses the codec default.
	FramePrefix string

	// RequestTimeout bounds how long SendRequest waits for a reply.
	// Nil falls back to RequestTimeoutEnv; zero waits indefinitely.
	RequestTimeout *time.Duration

	// PendingWarnThreshold is the number of outstanding requests, in either
	// direction, above which a warning is logged. Zero uses the default.
	PendingWarnThreshold int
}

// ResolveRequestTimeout returns the request timeout from options, env var, or zero.
func (o *Options) ResolveRequestTimeout() time.Duration {
	if o != nil && o.RequestTimeout != nil {
		return max(*o.RequestTimeout, 0)
	}

	if timeoutStr := os.Getenv(RequestTimeoutEnv); timeoutStr != "" {
		if timeoutSec, err := strconv.Atoi(timeoutStr); err == nil && timeoutSec > 0 {
			return time.Duration(timeoutSec) * time.Second
		}
	}

	return 0
}

// ResolvePendingWarnThreshold returns the configured threshold or the default.
func (o *Options) ResolvePendingWarnThreshold() int {
	if o != nil && o.PendingWarnThreshold > 0 {
		return o.PendingWarnThreshold
	}

	return DefaultPendingWarnThreshold
}

// EngineEnv returns the engine host's extra environment as KEY=value
// entries, sorted by key.
func (o *Options) EngineEnv() []string {
	if o == nil || len(o.Env) == 0 {
		return nil
	}

	env := make([]string, 0, len(o.Env))
	for _, key := range slices.Sorted(maps.Keys(o.Env)) {
		env = append(env, key+"="+o.Env[key])
	}

	return env
}
