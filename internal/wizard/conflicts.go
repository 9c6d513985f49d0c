package wizard

import (
	"context"
	"sort"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
)

// scanConflicts checks, for every selected book's proposed target path,
// whether something already exists there under the session's target
// root. One plan item can raise at most one conflict.
func (e *Engine) scanConflicts(ctx context.Context, plan Plan, mode string) ([]Conflict, error) {
	root, err := targetRootForMode(mode)
	if err != nil {
		return nil, err
	}
	var out []Conflict
	for _, row := range plan.SelectedBooks {
		if e.fs.Exists(ctx, root, row.ProposedTargetRelativePath) {
			out = append(out, Conflict{Root: string(root), TargetRelPath: row.ProposedTargetRelativePath})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Root != out[j].Root {
			return out[i].Root < out[j].Root
		}
		return out[i].TargetRelPath < out[j].TargetRelPath
	})
	return out, nil
}

func conflictFingerprint(items []Conflict) (string, error) {
	if items == nil {
		items = []Conflict{}
	}
	return fingerprint.FingerprintJSON(items)
}

// refreshConflicts recomputes a session's plan and conflict scan from its
// current selection and conflict_policy answer, persisting both the new
// Conflicts block and the plan itself. Called whenever a submission's
// next step is final_summary_confirm, including the return from
// resolve_conflicts_batch.
func (e *Engine) refreshConflicts(ctx context.Context, st *State) error {
	plan, err := e.computePlanFor(ctx, *st)
	if err != nil {
		return err
	}
	policy := "ask"
	if cp, ok := st.Answers["conflict_policy"]; ok {
		if m, ok := cp["mode"].(string); ok && m != "" {
			policy = m
		}
	}
	items, err := e.scanConflicts(ctx, plan, st.Mode)
	if err != nil {
		return err
	}
	fp, err := conflictFingerprint(items)
	if err != nil {
		return err
	}

	// A user confirmation recorded against resolve_conflicts_batch
	// acknowledges the exact conflict set it was shown; it survives a
	// re-scan only as long as that set hasn't changed. A fresh or altered
	// conflict set under policy "ask" always needs a fresh confirmation.
	resolved := policy != "ask" || len(items) == 0
	if !resolved && st.Conflicts.Resolved && st.Derived.ConflictFingerprint == fp {
		resolved = true
	}

	st.Derived.ConflictFingerprint = fp
	st.Conflicts = Conflicts{
		Present:  len(items) > 0,
		Items:    items,
		Resolved: resolved,
		Policy:   policy,
	}
	return nil
}
