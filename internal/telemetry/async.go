package telemetry

import (
	"context"
	"log"
	"sync"
	"time"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain needs to wait for emits started before shutdown.
const ShutdownDrainDuration = emitTimeout

var pending sync.WaitGroup

// EmitAsync emits event in the background so request handlers are not blocked. The emit keeps
// ctx's values (trace context) but not its cancellation, and is bounded by emitTimeout.
// Errors are logged. A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	pending.Add(1)
	go func() {
		defer pending.Done()
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: %s emit failed: %v", event.Type, err)
		}
	}()
}

// Drain waits until every emit started by EmitAsync has finished or timeout elapses, and
// reports whether they all finished. Call it before shutting the providers down.
func Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
