package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines; a Hub calls each sink from a single goroutine.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so the pipeline stays
// agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}
