package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// maxScanTokenSize is the maximum buffer size for reading one frame line.
const maxScanTokenSize = 1024 * 1024 // 1MB

// StreamTransport implements Transport over a pair of byte streams.
//
// Each frame is written as one line terminated by '\n'. Frames containing a
// line delimiter cannot be represented and are rejected by SendFrame.
type StreamTransport struct {
	log *slog.Logger
	r   io.Reader
	out *lineWriter

	mu      sync.Mutex
	started bool
	closing bool
}

// Compile-time verification that StreamTransport implements the Transport interface.
var _ config.Transport = (*StreamTransport)(nil)

// NewStreamTransport creates a transport reading frames from r and writing
// them to w. If r or w implement io.Closer they are closed by Close.
func NewStreamTransport(log *slog.Logger, r io.Reader, w io.Writer) *StreamTransport {
	log = log.With("component", "stream_transport")

	return &StreamTransport{
		log: log,
		r:   r,
		out: newLineWriter(log, w),
	}
}

// Start marks the transport ready. The streams are expected to be open.
func (t *StreamTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return errors.ErrTransportNotReady
	}

	t.started = true
	t.log.Debug("Stream transport started")

	return nil
}

// ReadFrames reads newline-delimited frames until the reader is exhausted.
//
// Empty lines are skipped. Both channels are closed when the reader returns
// EOF, the context is cancelled, or the stream fails. A failure after Close
// is not reported.
func (t *StreamTransport) ReadFrames(ctx context.Context) (<-chan string, <-chan error) {
	frames := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)
		defer t.log.Debug("ReadFrames goroutine stopped")

		if err := scanFrames(ctx, t.log, t.r, frames); err != nil {
			if t.isClosing() {
				t.log.Debug("Stream read ended during shutdown", "error", err)

				return
			}

			errs <- err
		}
	}()

	return frames, errs
}

// SendFrame writes one frame followed by a newline.
//
// This method is safe for concurrent use and respects context cancellation
// even during blocking writes.
func (t *StreamTransport) SendFrame(ctx context.Context, frame string) error {
	if !t.IsReady() {
		return errors.ErrTransportNotReady
	}

	return t.out.write(ctx, frame)
}

// IsReady returns true after Start and before Close.
func (t *StreamTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.started && !t.closing
}

// Close closes both streams if they are closable. It's safe to call Close
// multiple times.
func (t *StreamTransport) Close() error {
	t.mu.Lock()

	if t.closing {
		t.mu.Unlock()

		return nil
	}

	t.closing = true
	t.mu.Unlock()

	t.log.Debug("Closing stream transport")

	err := t.out.close()

	if c, ok := t.r.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

func (t *StreamTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closing
}

// scanFrames reads lines from r into frames until EOF or ctx ends.
func scanFrames(ctx context.Context, log *slog.Logger, r io.Reader, frames chan<- string) error {
	scanner := bufio.NewScanner(r)
	// Set large buffer for big frames
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	frameCount := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			log.Debug("Context cancelled during scan", "error", ctx.Err())

			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		frameCount++
		log.Debug("Received frame", "frame_count", frameCount, "frame_len", len(line))

		select {
		case frames <- line:
		case <-ctx.Done():
			log.Debug("Context cancelled during frame delivery", "error", ctx.Err())

			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug("Scanner error while reading frames", "error", err)

		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// lineWriter serializes newline-terminated writes to a stream.
type lineWriter struct {
	log    *slog.Logger
	mu     sync.Mutex // Protects writes
	w      io.Writer
	closed atomic.Bool
}

func newLineWriter(log *slog.Logger, w io.Writer) *lineWriter {
	return &lineWriter{log: log, w: w}
}

// write sends frame plus a newline.
//
// If ctx ends during a blocked write, the stream is closed to unblock the
// writer goroutine and later writes return ErrWriterClosed.
func (lw *lineWriter) write(ctx context.Context, frame string) error {
	if strings.ContainsAny(frame, "\r\n") {
		return errors.ErrFrameDelimiter
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.w == nil {
		return errors.ErrTransportNotReady
	}

	if lw.closed.Load() {
		return errors.ErrWriterClosed
	}

	// Check context before starting
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data := make([]byte, 0, len(frame)+1)
	data = append(data, frame...)
	data = append(data, '\n')

	// Write in goroutine to respect context cancellation
	done := make(chan error, 1)

	go func() {
		_, err := lw.w.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			lw.log.Error("Failed to write frame", "error", err)

			return fmt.Errorf("write frame: %w", err)
		}

		return nil

	case <-ctx.Done():
		lw.log.Debug("Context cancelled during write, closing writer")

		_ = lw.close()

		// Wait for goroutine to exit with timeout to prevent leak
		select {
		case <-done:
		case <-time.After(1 * time.Second):
			lw.log.Warn("Write goroutine did not exit after writer close, potential leak")
		}

		return ctx.Err()
	}
}

// close closes the underlying writer once, if it is closable. It does not
// wait for a blocked write, so a hung stream can always be torn down.
func (lw *lineWriter) close() error {
	if lw.closed.Swap(true) || lw.w == nil {
		return nil
	}

	if c, ok := lw.w.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
