// Package diagnostics implements the process-wide publish/subscribe event
// bus and envelope construction every component emits operation telemetry
// through. Emission is fail-safe: nothing here is ever allowed to abort
// the primary operation that triggered it.
package diagnostics

import "time"

// Envelope is the uniform shape of every diagnostics event.
type Envelope struct {
	Event     string         `json:"event"`
	Component string         `json:"component"`
	Operation string         `json:"operation"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// requiredKeys copied from the call-site data into the envelope body when
// present, matching the original's "required-context" helper.
var requiredKeys = []string{
	"session_id", "model_fingerprint", "discovery_fingerprint",
	"effective_config_fingerprint", "conflict_fingerprint", "job_id",
	"idempotency_key",
}

// BuildEnvelope constructs an Envelope, copying any required-context keys
// present in data into the top level of Data (they already live there;
// this asserts they are preserved rather than dropped by callers).
func BuildEnvelope(event, component, operation string, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Event:     event,
		Component: component,
		Operation: operation,
		Timestamp: nowUTC(),
		Data:      data,
	}
}

func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// RequiredContext extracts the subset of data carrying the ids every
// envelope should propagate, for callers building diag.* events by hand.
func RequiredContext(data map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range requiredKeys {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}
