package progress

import "context"

// Sink consumes progress events one at a time. Implementations must be
// safe for repeated calls, honor ctx deadlines, and may be invoked from
// the hub's dispatch goroutine only.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// the refresh pipeline stays agnostic about where events end up.
type Emitter interface {
	Emit(evt Event)
}
