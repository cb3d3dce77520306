// Package protocol implements request/response correlation over a text
// frame transport.
//
// The protocol package provides a Dispatcher that decodes every inbound
// frame and routes it:
//   - messages fan out to every matching listener
//   - requests get a handler.Handler, tracked in the inbound correlation
//     table and offered to one owning listener
//   - replies are matched against outbound requests awaiting them
//   - cancellation signals reach the still-pending inbound handler
//
// Example usage:
//
//	dispatcher := protocol.NewDispatcher(log, options, nil)
//	dispatcher.Start(ctx)
//	defer dispatcher.Stop()
//
//	// Send a request and wait for its terminal reply
//	reply, err := dispatcher.SendRequest(ctx, "load_level", map[string]any{"level": 3})
package protocol
