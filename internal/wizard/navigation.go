package wizard

import "github.com/michalholes/audiomason2-sub000/internal/bootstrap"

func sessionStepOrder(em bootstrap.EffectiveModel) []string {
	out := make([]string, len(em.Steps))
	for i, s := range em.Steps {
		out[i] = s.StepID
	}
	return out
}

func indexOf(order []string, stepID string) int {
	for i, id := range order {
		if id == stepID {
			return i
		}
	}
	return -1
}

// linearNext returns the step immediately after stepID in order, or ""
// if stepID is the last step or not found.
func linearNext(order []string, stepID string) string {
	i := indexOf(order, stepID)
	if i < 0 || i+1 >= len(order) {
		return ""
	}
	return order[i+1]
}

// nextStepAfterSubmit resolves a submitted step's successor, applying the
// flow's two non-linear edges: final_summary_confirm branches to either
// resolve_conflicts_batch or processing depending on conflict state and
// policy, and resolve_conflicts_batch always returns to
// final_summary_confirm. Every other step falls through to the linear
// successor in the session's effective step order.
func nextStepAfterSubmit(order []string, stepID string, canonical map[string]any, conflicts Conflicts) string {
	switch stepID {
	case "final_summary_confirm":
		confirmed, _ := canonical["confirm_start"].(bool)
		if !confirmed {
			return "final_summary_confirm"
		}
		if conflicts.Policy == "ask" && conflicts.Present && !conflicts.Resolved {
			return "resolve_conflicts_batch"
		}
		// No resolution needed: resolve_conflicts_batch is purely
		// conditional and sits immediately after final_summary_confirm in
		// the canonical order purely to give the branch above somewhere
		// linear to point at, so skip straight past it.
		nxt := linearNext(order, stepID)
		if nxt == "resolve_conflicts_batch" {
			nxt = linearNext(order, nxt)
		}
		return nxt
	case "resolve_conflicts_batch":
		return "final_summary_confirm"
	default:
		return linearNext(order, stepID)
	}
}

// autoAdvanceComputedSteps skips the engine forward over any run of
// computed-only steps (plan_preview_batch) that a submission has just
// landed on; a UI can never submit to these directly. "processing" is
// deliberately excluded: phase-2 entry happens only through
// StartProcessing, never by walking off the end of phase 1.
func autoAdvanceComputedSteps(order []string, stepID string) string {
	for stepID == "plan_preview_batch" {
		next := linearNext(order, stepID)
		if next == "" {
			return stepID
		}
		stepID = next
	}
	return stepID
}
