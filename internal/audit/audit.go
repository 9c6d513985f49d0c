// Package audit implements the append-only decision trail a wizard
// session keeps alongside its other artifacts: one line per step
// submission, accepted or rejected, never rewritten or compacted.
package audit

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// Entry is one line of a session's decisions.jsonl.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	StepID    string         `json:"step_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Result    string         `json:"result"`
	Error     string         `json:"error,omitempty"`
}

// Trail appends decisions for a single session directory.
type Trail struct {
	fs  *jail.FileService
	rel string
}

// New returns a Trail writing to <sessionDir>/decisions.jsonl.
func New(fs *jail.FileService, sessionDir string) *Trail {
	return &Trail{fs: fs, rel: sessionDir + "/decisions.jsonl"}
}

// Append records one decision. now is an RFC3339 UTC timestamp supplied
// by the caller (audit never reads the clock itself, so callers can make
// a session's whole decision trail deterministic under test).
func (t *Trail) Append(ctx context.Context, now, stepID string, payload map[string]any, result, errMsg string) error {
	return t.fs.AppendJSONL(ctx, jail.RootWizards, t.rel, Entry{
		Timestamp: now,
		StepID:    stepID,
		Payload:   payload,
		Result:    result,
		Error:     errMsg,
	})
}
