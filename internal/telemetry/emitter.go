package telemetry

import "context"

// EventEmitter emits telemetry events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// MultiEmitter fans one event out to several emitters. Every emitter is tried;
// the first error is returned.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var firstErr error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
