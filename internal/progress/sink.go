package progress

import "context"

// Sink consumes batches of events. The hub calls it from a single goroutine
// with a per-flush deadline in ctx.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events; Hub and Nop satisfy it.
type Emitter interface {
	Emit(evt Event)
}
