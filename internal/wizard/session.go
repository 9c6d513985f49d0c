package wizard

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/bootstrap"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// CreateSessionParams is everything a caller supplies to start or resume
// a session: the one source tree this wizard run will ever operate on,
// its copy mode, and an optional legacy flow-config override map.
type CreateSessionParams struct {
	SourceRoot          string
	SourceRelativePath  string
	Mode                string
	FlowConfigOverrides map[string]bool
}

// CreateSession bootstraps the model layer if needed, runs discovery over
// the requested source, projects an effective model, and derives the
// session's deterministic id from the (root, path, mode, fingerprints)
// tuple. A second call with identical inputs resumes the same session:
// its persisted state is returned unchanged except for a refreshed
// model_fingerprint, since selection items track the live discovery set.
func (e *Engine) CreateSession(ctx context.Context, p CreateSessionParams) (st State, err error) {
	obs, ctx := e.observe(ctx, "create_session", map[string]any{
		"source_root": p.SourceRoot, "source_relative_path": p.SourceRelativePath, "mode": p.Mode,
	})
	defer obs.End(&err)

	if p.Mode != "stage" && p.Mode != "inplace" {
		return State{}, wizarderr.Validation("mode must be stage or inplace",
			wizarderr.Detail{Path: "$.mode", Reason: "invalid_value"})
	}

	if err := bootstrap.EnsureDefaultModels(ctx, e.fs); err != nil {
		return State{}, err
	}

	catalog, err := bootstrap.LoadCatalog(ctx, e.fs)
	if err != nil {
		return State{}, err
	}
	flow, err := bootstrap.LoadFlow(ctx, e.fs)
	if err != nil {
		return State{}, err
	}
	wizardDef, err := bootstrap.LoadWizardDefinition(ctx, e.fs)
	if err != nil {
		return State{}, err
	}
	flowConfig, err := bootstrap.LoadFlowConfig(ctx, e.fs)
	if err != nil {
		return State{}, err
	}

	flowConfig, err = bootstrap.NormalizeFlowConfig(flowConfig)
	if err != nil {
		return State{}, err
	}
	flowConfig, err = bootstrap.MergeFlowConfigOverrides(flowConfig, p.FlowConfigOverrides)
	if err != nil {
		return State{}, err
	}
	if err := bootstrap.ValidateModels(catalog, flow); err != nil {
		return State{}, err
	}

	stepOrder, err := bootstrap.BuildEffectiveWorkflowSnapshot(wizardDef, flowConfig)
	if err != nil {
		return State{}, err
	}
	effectiveModel, err := bootstrap.BuildFlowModel(catalog, flowConfig, stepOrder)
	if err != nil {
		return State{}, err
	}

	root, err := sourceRootName(p.SourceRoot)
	if err != nil {
		return State{}, err
	}
	disc, err := e.discovery.Run(ctx, root, p.SourceRelativePath)
	if err != nil {
		return State{}, err
	}

	authors, books := deriveSelectionItems(disc)
	effectiveModel = injectSelectionItems(effectiveModel, authors, books)

	modelFP, err := fingerprint.FingerprintJSON(effectiveModel)
	if err != nil {
		return State{}, err
	}
	discoveryFP, err := fingerprint.FingerprintJSON(disc)
	if err != nil {
		return State{}, err
	}
	effectiveConfigFP, err := fingerprint.FingerprintJSON(flowConfig)
	if err != nil {
		return State{}, err
	}

	sessionID := deriveSessionID(p.SourceRoot, p.SourceRelativePath, p.Mode, modelFP, discoveryFP, effectiveConfigFP)

	if e.fs.Exists(ctx, jail.RootWizards, statePath(sessionID)) {
		existing, err := e.loadState(ctx, sessionID)
		if err != nil {
			return State{}, err
		}
		refreshedFP, err := e.runtimeEffectiveModelFingerprint(ctx, sessionID)
		if err != nil {
			return State{}, err
		}
		existing.ModelFingerprint = refreshedFP
		obs.Summary()["resumed"] = true
		return existing, nil
	}

	now := nowUTC()
	st = State{
		SessionID:        sessionID,
		CreatedAt:        now,
		UpdatedAt:        now,
		ModelFingerprint: modelFP,
		Phase:            1,
		Mode:             p.Mode,
		Source:           Source{Root: p.SourceRoot, RelativePath: p.SourceRelativePath},
		CurrentStepID:        effectiveModel.Steps[0].StepID,
		CompletedStepIDs:     []string{},
		Answers:              map[string]map[string]any{},
		Inputs:               map[string]map[string]any{},
		Computed:             map[string]any{},
		SelectedAuthorIDs:    []string{},
		SelectedBookIDs:      []string{},
		EffectiveAuthorTitle: map[string]any{},
		Derived: Derived{
			DiscoveryFingerprint:       discoveryFP,
			EffectiveConfigFingerprint: effectiveConfigFP,
		},
		Conflicts: Conflicts{Policy: "ask"},
		Status:    StatusInProgress,
		Errors:    []string{},
	}

	if err := e.fs.AtomicWriteJSON(ctx, jail.RootWizards, sessionDir(sessionID)+"/effective_model.json", effectiveModel); err != nil {
		return State{}, err
	}
	if err := e.fs.AtomicWriteJSON(ctx, jail.RootWizards, sessionDir(sessionID)+"/discovery.json", disc); err != nil {
		return State{}, err
	}
	if err := e.fs.AtomicWriteJSON(ctx, jail.RootWizards, sessionDir(sessionID)+"/effective_config.json", flowConfig); err != nil {
		return State{}, err
	}
	if err := e.persistState(ctx, st, now); err != nil {
		return State{}, err
	}
	if err := e.auditTrail(sessionID).Append(ctx, now, "", nil, "session.created", ""); err != nil {
		return State{}, err
	}

	obs.Summary()["resumed"] = false
	obs.Summary()["session_id"] = sessionID
	return st, nil
}

// deriveSessionID computes a session's deterministic id from the inputs
// that fully determine it: the source tree, the copy mode, and the three
// fingerprints (model, discovery, effective config) pinning the session
// to the exact model and source state it was created against. Two
// CreateSession calls with identical inputs always resume the same
// session; any change to any of the six fields starts a new one.
func deriveSessionID(root, relPath, mode, modelFP, discoveryFP, effectiveConfigFP string) string {
	material := "root:" + root + "|path:" + relPath + "|mode:" + mode +
		"|m:" + modelFP + "|d:" + discoveryFP + "|c:" + effectiveConfigFP
	return fingerprint.Truncate16(fingerprint.SHA256Hex([]byte(material)))
}

// GetState returns a session's current persisted state.
func (e *Engine) GetState(ctx context.Context, sessionID string) (State, error) {
	return e.loadState(ctx, sessionID)
}

// GetStepDefinition returns the effective-model schema for one step of a
// session's flow.
func (e *Engine) GetStepDefinition(ctx context.Context, sessionID, stepID string) (bootstrap.EffectiveStep, error) {
	em, err := e.loadEffectiveModel(ctx, sessionID)
	if err != nil {
		return bootstrap.EffectiveStep{}, err
	}
	for _, s := range em.Steps {
		if s.StepID == stepID {
			return s, nil
		}
	}
	return bootstrap.EffectiveStep{}, wizarderr.NotFound("step not found: "+stepID,
		wizarderr.Detail{Path: "$.step_id", Reason: "not_found"})
}
