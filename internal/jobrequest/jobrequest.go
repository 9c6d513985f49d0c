// Package jobrequest builds the job_requests.json document a session
// writes once, atomically, right before entering phase 2, and derives
// the batch-size figure start_processing reports back to its caller.
package jobrequest

import (
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
)

// Target identifies where a batch action's output lands.
type Target struct {
	Root string `json:"root"`
}

// Source identifies where a batch action's input is read from.
type Source struct {
	Root         string `json:"root"`
	RelativePath string `json:"relative_path"`
}

// Action is one entry of a job request document's actions list. This
// builder only ever produces a single "import.batch" action per
// document: one session always maps to exactly one source tree.
type Action struct {
	Type         string         `json:"type"`
	Source       Source         `json:"source"`
	Target       Target         `json:"target"`
	PlanSummary  map[string]any `json:"plan_summary"`
}

// DiagnosticsContext carries the fingerprint quadruple every diagnostics
// envelope emitted for this job traces back to.
type DiagnosticsContext struct {
	ModelFingerprint            string `json:"model_fp"`
	DiscoveryFingerprint        string `json:"discovery_fp"`
	EffectiveConfigFingerprint  string `json:"effective_config_fp"`
	ConflictFingerprint         string `json:"conflict_fp"`
}

// Document is the job_requests.json shape.
type Document struct {
	JobType            string              `json:"job_type"`
	JobVersion         int                 `json:"job_version"`
	SessionID          string              `json:"session_id"`
	Mode               string              `json:"mode"`
	ConfigFingerprint  string              `json:"config_fingerprint"`
	Actions            []Action            `json:"actions"`
	DiagnosticsContext DiagnosticsContext  `json:"diagnostics_context"`
	IdempotencyKey     string              `json:"idempotency_key,omitempty"`
}

// BuildParams is everything Build needs to assemble a Document, already
// resolved by the caller (the wizard engine) from session state, plan,
// and target-root policy.
type BuildParams struct {
	SessionID           string
	Mode                string
	Source              Source
	TargetRoot           string
	PlanSummary          map[string]any
	ConfigFingerprint    string
	DiagnosticsContext   DiagnosticsContext
}

// Build constructs a Document and stamps its idempotency_key as the
// fingerprint of the document with idempotency_key absent -- the key
// must never be computed over a document that already contains itself.
func Build(p BuildParams) (Document, error) {
	doc := Document{
		JobType:           "import.process",
		JobVersion:        1,
		SessionID:         p.SessionID,
		Mode:              p.Mode,
		ConfigFingerprint: p.ConfigFingerprint,
		Actions: []Action{
			{
				Type:        "import.batch",
				Source:      p.Source,
				Target:      Target{Root: p.TargetRoot},
				PlanSummary: p.PlanSummary,
			},
		},
		DiagnosticsContext: p.DiagnosticsContext,
	}

	key, err := fingerprint.FingerprintJSON(doc)
	if err != nil {
		return Document{}, err
	}
	doc.IdempotencyKey = key
	return doc, nil
}

// PlannedUnitsCount derives the batch_size start_processing reports back
// to its caller from a plan's summary. The original source imports a
// function of this name from this module at two call sites but never
// actually defines it anywhere in the excerpt available here -- a gap in
// the source this was distilled from, not a behavior to port faithfully.
// This derives a reasonable count from the plan summary's selected_books
// figure, falling back to the sum of discovered files, dirs and bundles
// when selected_books is absent or not positive.
func PlannedUnitsCount(planSummary map[string]any) int {
	if v, ok := planSummary["selected_books"]; ok {
		if n, ok := asInt(v); ok && n > 0 {
			return n
		}
	}
	total := 0
	for _, key := range []string{"files", "dirs", "bundles"} {
		if v, ok := planSummary[key]; ok {
			if n, ok := asInt(v); ok {
				total += n
			}
		}
	}
	return total
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}
