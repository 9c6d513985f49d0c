package wizard

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/bootstrap"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

var conflictPolicyModes = map[string]bool{
	"ask": true, "overwrite": true, "skip": true, "version_suffix": true,
}

// SubmitStep validates and canonicalizes a payload against a session's
// current step, records the decision, and advances the session to its
// next step, recomputing the plan and conflict scan whenever the new
// step lands on plan_preview_batch or final_summary_confirm.
func (e *Engine) SubmitStep(ctx context.Context, sessionID, stepID string, payload map[string]any) (st State, err error) {
	obs, ctx := e.observe(ctx, "submit_step", map[string]any{"session_id": sessionID, "step_id": stepID})
	defer obs.End(&err)

	st, err = e.loadState(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	trail := e.auditTrail(sessionID)
	now := nowUTC()

	if err := e.checkSubmittable(st, stepID); err != nil {
		_ = trail.Append(ctx, now, stepID, payload, "rejected", err.Error())
		return State{}, err
	}

	em, err := e.loadEffectiveModel(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	def, found := findStep(em, stepID)
	if !found {
		rejErr := wizarderr.Validation("step is not part of the session's effective flow",
			wizarderr.Detail{Path: "$.step_id", Reason: "disabled"})
		_ = trail.Append(ctx, now, stepID, payload, "rejected", rejErr.Error())
		return State{}, rejErr
	}

	canonical, err := validateAndCanonicalizePayload(def.Fields, payload, nil)
	if err != nil {
		_ = trail.Append(ctx, now, stepID, payload, "rejected", err.Error())
		return State{}, err
	}

	if stepID == "conflict_policy" {
		mode, _ := canonical["mode"].(string)
		mode = toASCII(mode)
		if !conflictPolicyModes[mode] {
			rejErr := wizarderr.Validation("conflict_policy.mode must be one of ask, overwrite, skip, version_suffix",
				wizarderr.Detail{Path: "$.mode", Reason: "invalid_value"})
			_ = trail.Append(ctx, now, stepID, payload, "rejected", rejErr.Error())
			return State{}, rejErr
		}
		canonical["mode"] = mode
	}

	if stepID == "resolve_conflicts_batch" {
		if st.Conflicts.Policy == "ask" {
			confirmed, _ := canonical["confirm"].(bool)
			if !confirmed {
				rejErr := wizarderr.ConflictsUnresolved("resolving conflicts requires confirm=true under policy ask",
					wizarderr.Detail{Path: "$.confirm", Reason: "missing_confirmation"})
				_ = trail.Append(ctx, now, stepID, payload, "rejected", rejErr.Error())
				return State{}, rejErr
			}
		}
		st.Conflicts.Resolved = true
	}

	if st.Answers == nil {
		st.Answers = map[string]map[string]any{}
	}
	if st.Inputs == nil {
		st.Inputs = map[string]map[string]any{}
	}
	st.Answers[stepID] = canonical
	st.Inputs[stepID] = payload

	applyStateProjections(&st, stepID, canonical)
	st.CompletedStepIDs = appendUnique(st.CompletedStepIDs, stepID)

	order := sessionStepOrder(em)
	next := nextStepAfterSubmit(order, stepID, canonical, st.Conflicts)

	if next == "final_summary_confirm" {
		if err := e.refreshConflicts(ctx, &st); err != nil {
			return State{}, err
		}
	}

	if next == "plan_preview_batch" {
		if _, perr := e.computePlanFor(ctx, st); perr != nil {
			if perr == ErrPlanSelection {
				st.CurrentStepID = "select_books"
				st.Errors = append(st.Errors, perr.Error())
				if err := e.persistState(ctx, st, now); err != nil {
					return State{}, err
				}
				_ = trail.Append(ctx, now, stepID, payload, "accepted", "")
				obs.Summary()["next_step_id"] = st.CurrentStepID
				return st, nil
			}
			return State{}, perr
		}
		next = autoAdvanceComputedSteps(order, next)
		if next == "final_summary_confirm" {
			if err := e.refreshConflicts(ctx, &st); err != nil {
				return State{}, err
			}
		}
	}

	st.CurrentStepID = next
	if next == "processing" {
		st.Status = StatusProcessing
	}

	if err := e.persistState(ctx, st, now); err != nil {
		return State{}, err
	}
	if err := trail.Append(ctx, now, stepID, payload, "accepted", ""); err != nil {
		return State{}, err
	}
	obs.Summary()["next_step_id"] = st.CurrentStepID
	return st, nil
}

// checkSubmittable rejects a submission before any validation work if the
// session isn't in a state that can accept it: wrong phase, aborted, a
// step mismatch against current_step_id, or a computed-only step no UI
// can submit to directly.
func (e *Engine) checkSubmittable(st State, stepID string) error {
	if st.Status == StatusAborted {
		return wizarderr.IllegalTransition("session is aborted")
	}
	if st.Phase != 1 {
		return wizarderr.IllegalTransition("session has already entered phase 2")
	}
	if stepID == "plan_preview_batch" || stepID == "processing" {
		return wizarderr.Validation("step is computed-only and cannot be submitted directly",
			wizarderr.Detail{Path: "$.step_id", Reason: "computed_only"})
	}
	if stepID != st.CurrentStepID {
		return wizarderr.IllegalTransition("step_id does not match session's current_step_id: " + st.CurrentStepID)
	}
	return nil
}

func findStep(em bootstrap.EffectiveModel, stepID string) (bootstrap.EffectiveStep, bool) {
	for _, s := range em.Steps {
		if s.StepID == stepID {
			return s, true
		}
	}
	return bootstrap.EffectiveStep{}, false
}

// applyStateProjections folds a freshly-accepted step's canonical payload
// into the session's state fields other steps and operations read
// directly, rather than re-deriving them from the answers map each time.
func applyStateProjections(st *State, stepID string, canonical map[string]any) {
	switch stepID {
	case "select_authors":
		if ids, ok := canonical["author_ids_ids"].([]string); ok {
			st.SelectedAuthorIDs = ids
		}
	case "select_books":
		if ids, ok := canonical["book_ids_ids"].([]string); ok {
			st.SelectedBookIDs = ids
		}
	case "effective_author_title":
		if st.EffectiveAuthorTitle == nil {
			st.EffectiveAuthorTitle = map[string]any{}
		}
		for k, v := range canonical {
			st.EffectiveAuthorTitle[k] = v
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
