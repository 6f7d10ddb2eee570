// Package listener turns sharding pipeline events into tracing spans.
//
// Every listener implements Hooks for its event type and hands each event to
// Dispatch, which runs the shared protocol:
//
//   - BeforeExecute events call Hooks.BeforeExecute.
//   - ExecuteSuccess events call Hooks.TracingFinish.
//   - ExecuteFailure events tag Hooks.FailureSpan with the error, then call
//     Hooks.TracingFinish.
//
// Tracing is best effort. A panic raised by a hook or by the tracer is
// recovered and logged; it never reaches the goroutine that posted
// the event.
//
// Per-worker span state lives in executor.Local slots on the event's task, so
// listeners are safe for concurrent delivery from distinct tasks without
// locking.
package listener
