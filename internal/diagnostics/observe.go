package diagnostics

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wizard")

// Summary is the mutable result bag an observed operation may enrich
// before it ends, mirroring the original's `summary` dict yielded by
// _observe_operation (e.g. items_count, bytes, deleted).
type Summary map[string]any

// Observation wraps one operation in an operation.start/operation.end
// envelope pair plus an otel span, exactly as the original's
// _observe_operation context manager does. Usage:
//
//	obs, ctx := bus.Observe(ctx, "file_io", "file_io.copy", base)
//	defer obs.End(&err)
//	...
func (b *Bus) Observe(ctx context.Context, component, operation string, base map[string]any) (*Observation, context.Context) {
	spanCtx, span := tracer.Start(ctx, operation)
	start := time.Now()
	b.SafePublish("operation.start", component, operation, cloneMap(base))
	return &Observation{
		bus:       b,
		component: component,
		operation: operation,
		base:      base,
		summary:   Summary{},
		span:      span,
		start:     start,
	}, spanCtx
}

// Observation is the handle returned by Observe; call End exactly once.
type Observation struct {
	bus       *Bus
	component string
	operation string
	base      map[string]any
	summary   Summary
	span      trace.Span
	start     time.Time
}

// Summary exposes the mutable result bag for the caller to enrich.
func (o *Observation) Summary() Summary { return o.summary }

// End finalizes the observation: emits operation.end, logs a single
// structured line, and closes the otel span. errp may be nil or point at
// the operation's error (possibly nil itself).
func (o *Observation) End(errp *error) {
	durationMs := time.Since(o.start).Milliseconds()
	data := cloneMap(o.base)
	for k, v := range o.summary {
		data[k] = v
	}
	data["duration_ms"] = durationMs

	var err error
	if errp != nil {
		err = *errp
	}

	if err != nil {
		data["status"] = "failed"
		data["error_message"] = err.Error()
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.bus.SafePublish("operation.end", o.component, o.operation, data)
		log.Printf("%s status=failed duration_ms=%d error=%q", o.operation, durationMs, err.Error())
	} else {
		data["status"] = "succeeded"
		o.bus.SafePublish("operation.end", o.component, o.operation, data)
		log.Printf("%s status=succeeded duration_ms=%d", o.operation, durationMs)
	}
	o.span.End()
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
