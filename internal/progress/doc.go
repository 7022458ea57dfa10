// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the refresh pipeline uses to report run progress.
// Events are dispatched on a background goroutine and fanned out to
// pluggable sinks such as Prometheus metrics, structured logs, or the
// in-memory run store served by the API.
package progress
