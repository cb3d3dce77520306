// Package errors defines error types for the engine bridge.
//
// This package provides structured error types that describe the failure
// scenarios of the message protocol: undecodable frames, protocol misuse at
// the consumer boundary, and application errors carried across the channel.
// All error types support unwrapping and can be checked using errors.Is and
// errors.As.
package errors
