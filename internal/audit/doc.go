// Package audit implements async event dispatching for account and session
// lifecycle operations.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON lines, zerolog, no-op, fan-out).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is the structured audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. That belongs to the Engine and the flow functions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import dashauth or any sibling internal package.
//   - Record passwords, password hashes or raw tokens.
package audit
