package wizard

import (
	"context"
	"sort"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// ErrPlanSelection marks a plan computation that referenced a
// selected_book_id no longer present among the session's discovered
// book units, triggering the engine's revert-to-select_books transition.
var ErrPlanSelection = wizarderr.Validation("selected_book_id not found in discovery", wizarderr.Detail{Path: "$.selected_book_ids", Reason: "not_found"})

var policyStepIDs = []string{
	"filename_policy", "covers_policy", "id3_policy", "audio_processing",
	"publish_policy", "delete_source_policy", "conflict_policy", "parallelism",
}

func planRelPath(sessionID string) string {
	return sessionDir(sessionID) + "/plan.json"
}

// ComputePlan derives a session's Plan from its frozen discovery snapshot
// and its current book selection, and persists it. A selected_book_id no
// longer present among the discovered pairs returns ErrPlanSelection so
// the caller can revert current_step_id to select_books.
func (e *Engine) ComputePlan(ctx context.Context, sessionID string) (plan Plan, err error) {
	obs, ctx := e.observe(ctx, "compute_plan", map[string]any{"session_id": sessionID})
	defer obs.End(&err)

	st, err := e.loadState(ctx, sessionID)
	if err != nil {
		return Plan{}, err
	}
	plan, err = e.computePlanFor(ctx, st)
	if err != nil {
		return Plan{}, err
	}
	obs.Summary()["selected_books"] = len(plan.SelectedBooks)
	return plan, nil
}

// computePlanFor computes and persists a plan from an already-loaded
// State rather than re-reading session/state.json, so a caller mid-way
// through applying a not-yet-persisted state change (SubmitStep landing
// on plan_preview_batch) gets a plan reflecting that change instead of
// the state as it was before this submission.
func (e *Engine) computePlanFor(ctx context.Context, st State) (plan Plan, err error) {
	sessionID := st.SessionID
	disc, err := e.loadDiscovery(ctx, sessionID)
	if err != nil {
		return Plan{}, err
	}

	pairs := deriveBookPairs(disc.Books)
	byBookID := map[string]bookPair{}
	relByPair := map[bookPair]string{}
	unitTypeByPair := map[bookPair]string{}
	for _, b := range disc.Books {
		if b.UnitType != "dir" {
			continue
		}
		p := bookPair{b.Author, b.Book}
		if b.Author == "" {
			p = bookPair{b.Book, b.Book}
		}
		if _, ok := relByPair[p]; !ok {
			relByPair[p] = b.RelPath
			unitTypeByPair[p] = b.UnitType
		}
	}
	for _, p := range pairs {
		byBookID[fingerprint.BookID(p.authorKey, p.bookKey)] = p
	}

	selected := st.SelectedBookIDs
	if len(selected) == 0 {
		selected = make([]string, 0, len(pairs))
		for _, p := range pairs {
			selected = append(selected, fingerprint.BookID(p.authorKey, p.bookKey))
		}
	}

	if _, err := targetRootForMode(st.Mode); err != nil {
		return Plan{}, err
	}

	var rows []SelectedBook
	for _, id := range selected {
		p, ok := byBookID[id]
		if !ok {
			return Plan{}, ErrPlanSelection
		}
		rel, hasRel := relByPair[p]
		if !hasRel {
			rel = p.bookKey
		}
		rows = append(rows, SelectedBook{
			BookID:                     id,
			Label:                      pairLabel(p),
			AuthorKey:                  p.authorKey,
			BookKey:                    p.bookKey,
			UnitType:                   unitTypeByPair[p],
			SourceRelativePath:         rel,
			ProposedTargetRelativePath: rel,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Label != rows[j].Label {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].BookID < rows[j].BookID
	})

	files, dirs, bundles, discoveredItems, err := e.summarizeSelection(ctx, st, rows)
	if err != nil {
		return Plan{}, err
	}

	policies := map[string]any{}
	for _, stepID := range policyStepIDs {
		if v, ok := st.Answers[stepID]; ok {
			policies[stepID] = v
		}
	}

	plan = Plan{
		Version:       1,
		SessionID:     sessionID,
		Source:        st.Source,
		SelectedBooks: rows,
		Summary: PlanSummary{
			SelectedBooks:   len(rows),
			DiscoveredItems: discoveredItems,
			Files:           files,
			Dirs:            dirs,
			Bundles:         bundles,
		},
		SelectedPolicies: policies,
	}

	if err := e.fs.AtomicWriteJSON(ctx, jail.RootWizards, planRelPath(sessionID), plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// summarizeSelection walks the session's source root under each selected
// book's relative path, classifying member entries the way FastIndex's
// root-item classification does, to produce the plan's headline counts.
func (e *Engine) summarizeSelection(ctx context.Context, st State, rows []SelectedBook) (files, dirs, bundles, discovered int, err error) {
	root, rerr := sourceRootName(st.Source.Root)
	if rerr != nil {
		return 0, 0, 0, 0, rerr
	}
	for _, row := range rows {
		entries, lerr := e.fs.List(ctx, root, row.SourceRelativePath, true)
		if lerr != nil {
			return 0, 0, 0, 0, lerr
		}
		discovered++
		for _, en := range entries {
			discovered++
			if en.IsDir {
				dirs++
				continue
			}
			ext := strings.ToLower(extOfRel(en.RelPath))
			switch ext {
			case ".zip", ".rar":
				bundles++
			default:
				files++
			}
		}
	}
	return files, dirs, bundles, discovered, nil
}

func extOfRel(rel string) string {
	i := strings.LastIndexByte(rel, '.')
	if i < 0 {
		return ""
	}
	return rel[i:]
}

func sourceRootName(root string) (jail.RootName, error) {
	switch root {
	case string(jail.RootInbox):
		return jail.RootInbox, nil
	case string(jail.RootStage):
		return jail.RootStage, nil
	case string(jail.RootOutbox):
		return jail.RootOutbox, nil
	default:
		return "", wizarderr.Validation("unknown source root: "+root, wizarderr.Detail{Path: "$.source.root", Reason: "invalid_value"})
	}
}

// targetRootForMode resolves a session's mode to the root a plan's
// conflict scan and job-request target both point at: the Stage root for
// stage mode and the Outbox root for inplace mode, matching the
// original's scan_conflicts target-root mapping. The runner itself
// processes an inplace book where it lies in its source root.
func targetRootForMode(mode string) (jail.RootName, error) {
	switch mode {
	case "stage":
		return jail.RootStage, nil
	case "inplace":
		return jail.RootOutbox, nil
	default:
		return "", wizarderr.Validation("unknown mode: "+mode, wizarderr.Detail{Path: "$.mode", Reason: "invalid_value"})
	}
}
