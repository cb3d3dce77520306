package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// pipeBuffer is the number of frames each direction holds before SendFrame blocks.
const pipeBuffer = 64

// pipeLink is the state shared by both ends of a Pipe.
type pipeLink struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (l *pipeLink) close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// PipeEnd is one side of an in-memory connected pair of transports.
//
// Frames sent on one end are read, in order, from the other. Closing either
// end closes the pair; frames already buffered are still delivered.
type PipeEnd struct {
	log     *slog.Logger
	link    *pipeLink
	in      chan string
	out     chan string
	started atomic.Bool
}

// Compile-time verification that PipeEnd implements the Transport interface.
var _ config.Transport = (*PipeEnd)(nil)

// NewPipe creates a connected pair of transports.
func NewPipe(log *slog.Logger) (*PipeEnd, *PipeEnd) {
	link := &pipeLink{done: make(chan struct{})}
	aToB := make(chan string, pipeBuffer)
	bToA := make(chan string, pipeBuffer)

	a := &PipeEnd{
		log:  log.With("component", "pipe_transport", "end", "a"),
		link: link,
		in:   bToA,
		out:  aToB,
	}
	b := &PipeEnd{
		log:  log.With("component", "pipe_transport", "end", "b"),
		link: link,
		in:   aToB,
		out:  bToA,
	}

	return a, b
}

// Start marks this end ready.
func (p *PipeEnd) Start(_ context.Context) error {
	select {
	case <-p.link.done:
		return errors.ErrTransportNotReady
	default:
	}

	p.started.Store(true)

	return nil
}

// ReadFrames delivers frames sent by the peer.
//
// Both channels are closed when the pair is closed or ctx ends.
func (p *PipeEnd) ReadFrames(ctx context.Context) (<-chan string, <-chan error) {
	frames := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)
		defer p.log.Debug("ReadFrames goroutine stopped")

		for {
			select {
			case frame := <-p.in:
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}

			case <-p.link.done:
				p.drain(ctx, frames)

				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

// drain delivers frames that were buffered before the pair closed.
func (p *PipeEnd) drain(ctx context.Context, frames chan<- string) {
	for {
		select {
		case frame := <-p.in:
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		default:
			return
		}
	}
}

// SendFrame queues a frame for the peer.
//
// It blocks while the peer's buffer is full, until ctx ends or the pair closes.
func (p *PipeEnd) SendFrame(ctx context.Context, frame string) error {
	if !p.IsReady() {
		return errors.ErrTransportNotReady
	}

	select {
	case p.out <- frame:
		return nil
	case <-p.link.done:
		return errors.ErrTransportNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the pair. It's safe to call Close multiple times and from
// either end.
func (p *PipeEnd) Close() error {
	p.log.Debug("Closing pipe")
	p.link.close()

	return nil
}

// IsReady returns true after Start while the pair is open.
func (p *PipeEnd) IsReady() bool {
	select {
	case <-p.link.done:
		return false
	default:
		return p.started.Load()
	}
}
