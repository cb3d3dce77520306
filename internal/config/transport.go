// Package config provides configuration types for the engine bridge.
package config

import "context"

// Transport defines the interface for the native text channel.
// Implement this to provide custom transports for testing, mocking,
// or alternative channels between the host and the engine view.
//
// Frames are opaque UTF-8 strings delivered FIFO within a direction.
type Transport interface {
	// Start initializes the transport and prepares it for communication.
	// This is called before any frames are sent or received.
	Start(ctx context.Context) error

	// ReadFrames returns channels for receiving frames and errors.
	// Both channels are closed when reading completes or an error occurs.
	ReadFrames(ctx context.Context) (<-chan string, <-chan error)

	// SendFrame sends one text frame.
	// This method must be safe for concurrent use.
	SendFrame(ctx context.Context, frame string) error

	// Close terminates the transport and releases resources.
	// It's safe to call Close multiple times.
	Close() error

	// IsReady returns true if the transport is ready for communication.
	IsReady() bool
}
