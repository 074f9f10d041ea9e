package telemetry

import (
	"context"
	"log"
	"time"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long shutdown waits after the HTTP server
// drains before closing the emitters, so in-flight async emits can finish.
// Must be at least emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync emits the event on a goroutine so auth flows never block on
// telemetry. The emit runs on a fresh context rather than the request's: the
// triggering request may be done (or cancelled) before the emit completes,
// and a failed login's event should still go out. Errors are logged and
// dropped. Nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
