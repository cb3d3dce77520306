// Package bridge implements the lifecycle of one engine bridge endpoint.
//
// A Bridge owns a transport and the protocol dispatcher reading from it.
// It provides:
//   - Listener subscription before and after Start
//   - Outbound messages and requests
//   - An injected transport, or a spawned engine host process
//   - Orderly shutdown that resolves every open inbound request
//
// Both sides of a channel run the same Bridge; the protocol is symmetric.
package bridge
