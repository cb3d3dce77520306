package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/errors"
	"github.com/wagiedev/enginebridge-go/internal/listener"
	"github.com/wagiedev/enginebridge-go/internal/protocol"
	"github.com/wagiedev/enginebridge-go/internal/transport"
)

// Bridge owns one transport and the dispatcher running over it.
type Bridge struct {
	log        *slog.Logger
	transport  config.Transport
	dispatcher *protocol.Dispatcher
	listeners  *listener.Registry

	// Cancels the context the read loop and inbound handlers derive from
	cancel context.CancelFunc

	// Goroutines started on behalf of inbound requests
	workers sync.WaitGroup

	// Lifecycle management
	mu        sync.Mutex
	started   bool
	closed    bool      // Tracks if Close() has been called
	closeOnce sync.Once // Ensures Close() only runs once
}

// New creates a bridge that is not yet started.
//
// Listeners may be subscribed before Start so that no early frame is missed.
func New() *Bridge {
	return &Bridge{
		listeners: listener.NewRegistry(),
	}
}

// Listeners returns the registry inbound envelopes are offered to.
func (b *Bridge) Listeners() *listener.Registry {
	return b.listeners
}

// Start starts the transport and the dispatcher.
//
// If options carry no Transport, the engine host at options.EnginePath is
// spawned and frames travel over its stdio. ctx bounds transport startup
// only; the bridge keeps running until Close.
func (b *Bridge) Start(ctx context.Context, options *config.Options) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBridgeClosed
	}

	if b.started {
		return errors.ErrBridgeAlreadyStarted
	}

	// Default to empty options if nil
	if options == nil {
		options = &config.Options{}
	}

	// Extract logger from options, defaulting to a no-op logger
	log := options.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b.log = log.With("component", "bridge")

	tr, err := b.resolveTransport(log, options)
	if err != nil {
		return err
	}

	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	// Copy so the caller's options are not mutated
	resolved := *options
	resolved.Transport = tr

	b.transport = tr
	b.dispatcher = protocol.NewDispatcher(log, &resolved, b.listeners)

	// The read loop outlives the caller's ctx, which may only bound startup
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	if err := b.dispatcher.Start(runCtx); err != nil {
		cancel()
		_ = tr.Close()

		return fmt.Errorf("start dispatcher: %w", err)
	}

	b.started = true
	b.log.Info("Bridge started")

	return nil
}

// resolveTransport returns the injected transport or builds the process transport.
func (b *Bridge) resolveTransport(log *slog.Logger, options *config.Options) (config.Transport, error) {
	if options.Transport != nil {
		b.log.Debug("Using injected custom transport")

		return options.Transport, nil
	}

	if options.EnginePath == "" {
		return nil, errors.ErrNoTransport
	}

	b.log.Debug("Spawning engine host", "engine_path", options.EnginePath)

	return transport.NewProcessTransport(log, transport.ProcessConfig{
		Path:   options.EnginePath,
		Args:   options.EngineArgs,
		Env:    options.EngineEnv(),
		Dir:    options.Cwd,
		Stderr: options.Stderr,
	}), nil
}

// running returns the dispatcher if the bridge is started and not closed.
func (b *Bridge) running() (*protocol.Dispatcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.ErrBridgeClosed
	}

	if !b.started {
		return nil, errors.ErrBridgeNotStarted
	}

	return b.dispatcher, nil
}

// SendMessage sends a fire-and-forget message.
func (b *Bridge) SendMessage(ctx context.Context, id string, payload any) error {
	d, err := b.running()
	if err != nil {
		return err
	}

	return d.SendMessage(ctx, id, payload)
}

// SendRequest sends a request and waits for its terminal reply.
func (b *Bridge) SendRequest(ctx context.Context, id string, payload any) (*protocol.Reply, error) {
	d, err := b.running()
	if err != nil {
		return nil, err
	}

	return d.SendRequest(ctx, id, payload)
}

// Go runs fn on a goroutine that Close waits for.
func (b *Bridge) Go(fn func()) {
	b.workers.Go(fn)
}

// Pending returns the number of inbound requests not yet answered and of
// outbound requests awaiting a reply.
func (b *Bridge) Pending() (inbound, outbound int) {
	d, err := b.running()
	if err != nil {
		return 0, 0
	}

	return d.PendingInbound(), d.PendingOutbound()
}

// Done returns a channel that is closed when the bridge stops, either on
// Close or because the transport failed. It is nil before Start.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dispatcher == nil {
		return nil
	}

	return b.dispatcher.Done()
}

// Err returns the transport error that stopped the bridge, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	d := b.dispatcher
	b.mu.Unlock()

	if d == nil {
		return nil
	}

	return d.FatalError()
}

// Close stops the bridge and releases the transport.
//
// Every inbound request still open is resolved through the fallback reply
// and every outbound request still waiting fails. Close waits for goroutines
// started with Go, which should return once their handler's context ends.
// The bridge cannot be reused. It's safe to call Close multiple times.
func (b *Bridge) Close() error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		wasStarted := b.started
		b.started = false
		b.mu.Unlock()

		if !wasStarted {
			return
		}

		b.log.Info("Closing bridge")

		// Fallback replies still need the transport
		b.dispatcher.Stop()
		b.cancel()

		b.workers.Wait()

		if err := b.transport.Close(); err != nil {
			b.log.Warn("Failed to close transport", "error", err)

			closeErr = fmt.Errorf("close transport: %w", err)
		}

		b.log.Info("Bridge closed")
	})

	return closeErr
}
