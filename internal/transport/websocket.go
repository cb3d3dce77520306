package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// closeGracePeriod bounds how long Close waits to deliver the close frame.
const closeGracePeriod = time.Second

// WebSocketTransport implements Transport over a WebSocket connection.
// Each frame travels as one text message.
type WebSocketTransport struct {
	log    *slog.Logger
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu      sync.Mutex // Protects conn writes and state
	conn    *websocket.Conn
	closing bool
}

// Compile-time verification that WebSocketTransport implements the Transport interface.
var _ config.Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport creates a transport that dials url on Start.
func NewWebSocketTransport(log *slog.Logger, url string, header http.Header) *WebSocketTransport {
	return &WebSocketTransport{
		log:    log.With("component", "websocket_transport"),
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
	}
}

// NewWebSocketTransportFromConn wraps an established connection, such as
// one returned by websocket.Upgrader.Upgrade. Start is a no-op.
func NewWebSocketTransportFromConn(log *slog.Logger, conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{
		log:  log.With("component", "websocket_transport", "remote", conn.RemoteAddr().String()),
		conn: conn,
	}
}

// Start dials the configured URL unless the transport wraps a connection.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return errors.ErrTransportNotReady
	}

	if t.conn != nil {
		return nil
	}

	t.log.Debug("Dialing engine endpoint", "url", t.url)

	//nolint:bodyclose // The response body does not need to be closed on success.
	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.log.Error("Failed to dial engine endpoint", "url", t.url, "error", err)

		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.conn = conn
	t.log.Info("Connected to engine endpoint", "url", t.url)

	return nil
}

// ReadFrames reads text messages until the connection closes.
//
// Binary messages are skipped. A normal close, or any failure after Close,
// ends reading without an error.
func (t *WebSocketTransport) ReadFrames(ctx context.Context) (<-chan string, <-chan error) {
	frames := make(chan string)
	errs := make(chan error, 1)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		errs <- errors.ErrTransportNotReady

		close(frames)
		close(errs)

		return frames, errs
	}

	go func() {
		defer close(frames)
		defer close(errs)
		defer t.log.Debug("ReadFrames goroutine stopped")

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if t.isClosing() || isNormalDisconnect(err) {
					t.log.Debug("WebSocket read ended", "error", err)

					return
				}

				t.log.Error("WebSocket read error", "error", err)

				errs <- fmt.Errorf("read message: %w", err)

				return
			}

			if mt != websocket.TextMessage {
				t.log.Debug("Skipping non-text WebSocket message", "type", mt)

				continue
			}

			select {
			case frames <- string(data):
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

// SendFrame writes one text message. The context deadline, if any, bounds
// the write.
func (t *WebSocketTransport) SendFrame(ctx context.Context, frame string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return errors.ErrTransportNotReady
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.log.Error("Failed to write frame", "error", err)

		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// IsReady returns true while the connection is open.
func (t *WebSocketTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil && !t.closing
}

// Close sends a close frame and closes the connection. It's safe to call
// Close multiple times.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()

	if t.closing || t.conn == nil {
		t.closing = true
		t.mu.Unlock()

		return nil
	}

	t.closing = true
	conn := t.conn
	t.mu.Unlock()

	t.log.Debug("Closing WebSocket connection")

	// WriteControl may be called concurrently with other methods
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))

	if err := conn.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}

	return nil
}

func (t *WebSocketTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closing
}

// isNormalDisconnect reports whether err is an orderly end of the connection.
func isNormalDisconnect(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}

	return stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed)
}
