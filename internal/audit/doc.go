// Package audit delivers flow events to a sink off the caller's goroutine.
//
// # Components
//
//   - [Sink]: event consumers (channel, JSON writer, zap, fan-out, no-op).
//   - [Dispatcher]: buffered async relay that drops or blocks when full. A
//     sink that panics loses that one event.
//   - [Event]: one flow transition or failure, with flow, step and failure kind.
//
// The package does not decide which events to emit; the flows do. Identifiers
// should be passed through [MaskIdentifier] before they are placed on an Event.
package audit
