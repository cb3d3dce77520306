package enginebridge

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/transport"
)

// Transport defines the channel frames travel over.
// Implement this to bridge across a custom medium, such as an embedded
// browser view or a test double.
//
// Custom transports can be injected via WithTransport.
type Transport = config.Transport

// ProcessConfig describes an engine host process to launch.
type ProcessConfig = transport.ProcessConfig

// NewPipe returns two connected in-memory transports.
// Frames sent on one end are read from the other.
func NewPipe(log *slog.Logger) (Transport, Transport) {
	a, b := transport.NewPipe(orNop(log))

	return a, b
}

// NewStreamTransport returns a transport reading newline-delimited frames
// from r and writing them to w. It suits stdio-style hosts.
func NewStreamTransport(log *slog.Logger, r io.Reader, w io.Writer) Transport {
	return transport.NewStreamTransport(orNop(log), r, w)
}

// NewProcessTransport returns a transport that spawns the process described
// by cfg on Start.
func NewProcessTransport(log *slog.Logger, cfg ProcessConfig) Transport {
	return transport.NewProcessTransport(orNop(log), cfg)
}

// NewWebSocketTransport returns a transport that dials url on Start.
func NewWebSocketTransport(log *slog.Logger, url string, header http.Header) Transport {
	return transport.NewWebSocketTransport(orNop(log), url, header)
}

// NewWebSocketTransportFromConn wraps an established WebSocket connection.
func NewWebSocketTransportFromConn(log *slog.Logger, conn *websocket.Conn) Transport {
	return transport.NewWebSocketTransportFromConn(orNop(log), conn)
}

func orNop(log *slog.Logger) *slog.Logger {
	if log == nil {
		return NopLogger()
	}

	return log
}
