// Package envelope implements the wire unit exchanged between the host and
// the engine view, and the codec that turns it into text frames.
//
// Wire format (after the frame prefix):
//
//	{
//	  "kind": "request",
//	  "id": "greet",
//	  "correlation_id": "01J9Z8Q4M3T6V0XK2D7E5N1R8C",
//	  "payload": "hi"
//	}
//
// Frames that do not begin with the prefix are plain text and are reported
// as ErrNotEnvelope so the caller can route them elsewhere.
package envelope
