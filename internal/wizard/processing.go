package wizard

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobrequest"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

func jobRequestsRelPath(sessionID string) string {
	return sessionDir(sessionID) + "/job_requests.json"
}

// StartProcessing locks a session into phase 2 and materializes one
// jobstore record per selected book unit in its plan. spec.md's
// start_processing returns job_ids plural; a single whole-source
// job_requests.json document remains the run's audit artifact (matching
// the single "import.batch" action the original always produced), but
// the per-book jobstore records are what the worker pool actually
// claims and drives — a pool claims and executes one PENDING record per
// worker, so true N-way parallelism over a batch needs N independent
// PENDING records, not one record naming N books.
//
// Every call is idempotent: each book's job uses an idempotency key
// derived from the job request document's own key plus that book's id,
// so a repeated call against an already-processing session returns the
// same job_ids rather than creating duplicates.
func (e *Engine) StartProcessing(ctx context.Context, sessionID string) (jobIDs []string, batchSize int, err error) {
	obs, ctx := e.observe(ctx, "start_processing", map[string]any{"session_id": sessionID})
	defer obs.End(&err)

	st, err := e.loadState(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if st.Status == StatusAborted {
		return nil, 0, wizarderr.IllegalTransition("session is aborted")
	}
	if st.CurrentStepID != "processing" {
		return nil, 0, wizarderr.IllegalTransition("session has not reached the processing step")
	}
	if st.Conflicts.Present && !st.Conflicts.Resolved {
		return nil, 0, wizarderr.ConflictsUnresolved("unresolved conflicts must be resolved before processing starts")
	}

	plan, err := e.ComputePlan(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	targetRoot, err := targetRootForMode(st.Mode)
	if err != nil {
		return nil, 0, err
	}

	// A fresh scan guards against the target tree changing between
	// final_summary_confirm and start_processing. Under policy "ask" the
	// session has already gated admission on st.Conflicts.Resolved above;
	// under any other policy conflicts are auto-resolved, so a changed
	// conflict set here means the plan this job request is about to
	// describe no longer matches what the session last agreed to.
	freshConflicts, err := e.scanConflicts(ctx, plan, st.Mode)
	if err != nil {
		return nil, 0, err
	}
	freshFingerprint, err := conflictFingerprint(freshConflicts)
	if err != nil {
		return nil, 0, err
	}
	if st.Conflicts.Policy != "ask" && freshFingerprint != st.Derived.ConflictFingerprint {
		return nil, 0, wizarderr.InvariantViolation(
			"conflict set changed since the last scan",
			wizarderr.Detail{Path: "$.conflicts", Reason: "conflicts_changed"},
		)
	}

	doc, err := jobrequest.Build(jobrequest.BuildParams{
		SessionID:         sessionID,
		Mode:              st.Mode,
		Source:            jobrequest.Source{Root: st.Source.Root, RelativePath: st.Source.RelativePath},
		TargetRoot:        string(targetRoot),
		PlanSummary:       planSummaryMap(plan.Summary),
		ConfigFingerprint: st.Derived.EffectiveConfigFingerprint,
		DiagnosticsContext: jobrequest.DiagnosticsContext{
			ModelFingerprint:           st.ModelFingerprint,
			DiscoveryFingerprint:       st.Derived.DiscoveryFingerprint,
			EffectiveConfigFingerprint: st.Derived.EffectiveConfigFingerprint,
			ConflictFingerprint:        st.Derived.ConflictFingerprint,
		},
	})
	if err != nil {
		return nil, 0, err
	}
	if _, err := e.fs.AtomicWriteJSONIfMissing(ctx, jail.RootWizards, jobRequestsRelPath(sessionID), doc); err != nil {
		return nil, 0, err
	}

	runState := buildRunState(st, plan)
	if err := e.runStates.Put(ctx, sessionID, runState); err != nil {
		return nil, 0, err
	}

	jobIDs = make([]string, 0, len(plan.SelectedBooks))
	for _, row := range plan.SelectedBooks {
		idemKey := doc.IdempotencyKey + ":" + row.BookID
		meta := jobstore.Meta{
			Source:          "wizard",
			SessionID:       sessionID,
			IdempotencyKey:  idemKey,
			JobRequestsPath: jobRequestsRelPath(sessionID),
			RunID:           sessionID,
			SourceRoot:      st.Source.Root,
			BookRelPath:     row.SourceRelativePath,
			Mode:            st.Mode,
			UnitType:        row.UnitType,
		}
		rec, _, err := e.jobs.GetOrCreate(ctx, sessionID, jobstore.JobTypeImport, idemKey, meta)
		if err != nil {
			return nil, 0, err
		}
		jobIDs = append(jobIDs, rec.JobID)
	}

	now := nowUTC()
	st.Phase = 2
	st.Status = StatusProcessing
	st.CurrentStepID = "processing"
	if err := e.persistState(ctx, st, now); err != nil {
		return nil, 0, err
	}
	if err := e.auditTrail(sessionID).Append(ctx, now, "processing", map[string]any{"job_ids": jobIDs}, "accepted", ""); err != nil {
		return nil, 0, err
	}

	obs.Summary()["batch_size"] = len(jobIDs)
	return jobIDs, len(jobIDs), nil
}

func planSummaryMap(s PlanSummary) map[string]any {
	return map[string]any{
		"selected_books":   s.SelectedBooks,
		"discovered_items": s.DiscoveredItems,
		"files":            s.Files,
		"dirs":             s.Dirs,
		"bundles":          s.Bundles,
	}
}

func buildRunState(st State, plan Plan) jobstore.ImportRunState {
	mode := jobstore.ModeStage
	if st.Mode == "inplace" {
		mode = jobstore.ModeInplace
	}
	n := 1
	if v, ok := st.Answers["parallelism"]; ok {
		if raw, ok := v["parallelism_n"]; ok {
			if asN, ok := raw.(int); ok && asN > 0 {
				n = asN
			}
		}
	}
	snapshot := map[string]any{"selected_book_ids": st.SelectedBookIDs}

	globalOptions := map[string]any{}
	if ap, ok := st.Answers["audio_processing"]; ok {
		globalOptions["audio_processing"] = ap
	}
	if dsp, ok := st.Answers["delete_source_policy"]; ok {
		if enabled, _ := dsp["enabled"].(bool); enabled {
			globalOptions["delete_source"] = true
		}
	}

	return jobstore.ImportRunState{
		SourceSelectionSnapshot:     snapshot,
		SourceHandlingMode:          mode,
		ParallelismN:                n,
		GlobalOptions:               globalOptions,
		ConflictPolicy:              st.Answers["conflict_policy"],
		FilenameNormalizationPolicy: st.Answers["filename_policy"],
		ProcessedRegistryPolicy:     jobstore.ProcessedRegistryPolicy{Enabled: true, Scope: "book_folder"},
	}
}
