// Package handler implements the consumer-facing object for one inbound
// envelope.
//
// A Handler lets the receiver of a request answer now or later:
//   - Respond and Reject produce the single terminal reply
//   - Defer hands out a Deferral so the answer can come from another goroutine
//   - OnCancel and IsCanceled observe a cancellation signal from the sender
//   - Close terminates the handler, emitting a fallback reply if none was sent
//
// The fallback reply is Canceled when a cancellation signal was observed and
// an empty Response otherwise, so the requester never waits forever.
package handler
