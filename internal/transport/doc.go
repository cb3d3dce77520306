// Package transport provides text channels the bridge can run over.
//
// Every implementation satisfies config.Transport: frames are opaque UTF-8
// strings delivered in order within a direction. Available channels:
//   - Pipe: an in-memory connected pair, for embedding both runtimes in one process
//   - StreamTransport: newline-delimited frames over an io.Reader and io.Writer
//   - ProcessTransport: newline-delimited frames over the stdio of an engine host process
//   - WebSocketTransport: one frame per WebSocket text message
package transport
