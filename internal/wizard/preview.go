package wizard

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// PreviewResult is the cached, idempotent outcome of previewing a step
// submission without committing it to session state.
type PreviewResult struct {
	PreviewID string         `json:"preview_id"`
	StepID    string         `json:"step_id"`
	Payload   map[string]any `json:"canonical_payload"`
	Plan      *Plan          `json:"plan,omitempty"`
}

func previewPath(previewID string) string {
	return "import/previews/" + previewID + ".json"
}

// PreviewAction validates payload the same way SubmitStep would, without
// mutating session state or advancing current_step_id, and caches the
// result under a content-addressed preview id so repeated previews of an
// identical (session, step, payload) triple are free. When the step is
// plan_preview_batch, the cached result additionally carries the plan
// that payload's selection would produce.
func (e *Engine) PreviewAction(ctx context.Context, sessionID, stepID string, payload map[string]any) (res PreviewResult, err error) {
	obs, ctx := e.observe(ctx, "preview_action", map[string]any{"session_id": sessionID, "step_id": stepID})
	defer obs.End(&err)

	previewID, err := fingerprint.FingerprintJSON(map[string]any{
		"session_id": sessionID, "step_id": stepID, "payload": payload,
	})
	if err != nil {
		return PreviewResult{}, err
	}

	if e.fs.Exists(ctx, jail.RootWizards, previewPath(previewID)) {
		if err := readJSONInto(ctx, e.fs, previewPath(previewID), &res); err == nil {
			obs.Summary()["cache_hit"] = true
			return res, nil
		}
	}

	st, err := e.loadState(ctx, sessionID)
	if err != nil {
		return PreviewResult{}, err
	}

	var canonical map[string]any
	if stepID != "plan_preview_batch" && stepID != "processing" {
		em, err := e.loadEffectiveModel(ctx, sessionID)
		if err != nil {
			return PreviewResult{}, err
		}
		def, found := findStep(em, stepID)
		if !found {
			return PreviewResult{}, wizarderr.Validation("step is not part of the session's effective flow",
				wizarderr.Detail{Path: "$.step_id", Reason: "disabled"})
		}
		canonical, err = validateAndCanonicalizePayload(def.Fields, payload, nil)
		if err != nil {
			return PreviewResult{}, err
		}
	}

	res = PreviewResult{PreviewID: previewID, StepID: stepID, Payload: canonical}

	if stepID == "plan_preview_batch" || st.CurrentStepID == "plan_preview_batch" {
		plan, err := e.ComputePlan(ctx, sessionID)
		if err != nil && err != ErrPlanSelection {
			return PreviewResult{}, err
		}
		if err == nil {
			res.Plan = &plan
		}
	}

	if err := e.fs.AtomicWriteJSON(ctx, jail.RootWizards, previewPath(previewID), res); err != nil {
		return PreviewResult{}, err
	}
	obs.Summary()["cache_hit"] = false
	return res, nil
}
