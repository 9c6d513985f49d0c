package wizard

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/audit"
	"github.com/michalholes/audiomason2-sub000/internal/bootstrap"
	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// Engine is the Import Wizard Core: the stateful facade every one of
// spec.md's wizard operations hangs off of. One Engine instance is
// shared by every session a process serves; per-session exclusion is the
// caller's responsibility (spec.md's concurrency model requires callers
// to serialize wizard calls per session).
type Engine struct {
	fs        *jail.FileService
	bus       *diagnostics.Bus
	discovery *discovery.Service
	jobs      *jobstore.Service
	runStates *jobstore.RunStateStore
}

// New constructs an Engine. bus may be nil.
func New(fs *jail.FileService, bus *diagnostics.Bus, disc *discovery.Service, jobs *jobstore.Service, runStates *jobstore.RunStateStore) *Engine {
	return &Engine{fs: fs, bus: bus, discovery: disc, jobs: jobs, runStates: runStates}
}

func (e *Engine) observe(ctx context.Context, op string, base map[string]any) (*diagnostics.Observation, context.Context) {
	return e.bus.Observe(ctx, "import.wizard", op, base)
}

func sessionDir(sessionID string) string {
	return "import/sessions/" + sessionID
}

func statePath(sessionID string) string {
	return sessionDir(sessionID) + "/state.json"
}

func (e *Engine) auditTrail(sessionID string) *audit.Trail {
	return audit.New(e.fs, sessionDir(sessionID))
}

func (e *Engine) loadState(ctx context.Context, sessionID string) (State, error) {
	var st State
	if !e.fs.Exists(ctx, jail.RootWizards, statePath(sessionID)) {
		return State{}, wizardErrSessionNotFound(sessionID)
	}
	if err := readJSONInto(ctx, e.fs, statePath(sessionID), &st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (e *Engine) persistState(ctx context.Context, st State, now string) error {
	st.UpdatedAt = now
	return e.fs.AtomicWriteJSON(ctx, jail.RootWizards, statePath(st.SessionID), st)
}

func (e *Engine) loadEffectiveModel(ctx context.Context, sessionID string) (bootstrap.EffectiveModel, error) {
	var em bootstrap.EffectiveModel
	if err := readJSONInto(ctx, e.fs, sessionDir(sessionID)+"/effective_model.json", &em); err != nil {
		return bootstrap.EffectiveModel{}, err
	}
	return em, nil
}

func (e *Engine) loadDiscovery(ctx context.Context, sessionID string) (discovery.PreflightResult, error) {
	var d discovery.PreflightResult
	if err := readJSONInto(ctx, e.fs, sessionDir(sessionID)+"/discovery.json", &d); err != nil {
		return discovery.PreflightResult{}, err
	}
	return d, nil
}

func (e *Engine) loadEffectiveConfig(ctx context.Context, sessionID string) (map[string]any, error) {
	return e.fs.ReadJSON(ctx, jail.RootWizards, sessionDir(sessionID)+"/effective_config.json")
}

// runtimeEffectiveModelFingerprint recomputes the effective model's
// fingerprint with selection items re-derived from the session's frozen
// discovery.json, for the resume-time model_fingerprint refresh
// create_session performs (snapshots are immutable; the fingerprint the
// running process reports is allowed to track the live selection set).
func (e *Engine) runtimeEffectiveModelFingerprint(ctx context.Context, sessionID string) (string, error) {
	em, err := e.loadEffectiveModel(ctx, sessionID)
	if err != nil {
		return "", err
	}
	disc, err := e.loadDiscovery(ctx, sessionID)
	if err != nil {
		return "", err
	}
	authors, books := deriveSelectionItems(disc)
	em = injectSelectionItems(em, authors, books)
	return fingerprint.FingerprintJSON(em)
}

func readJSONInto(ctx context.Context, fs *jail.FileService, rel string, dst any) error {
	r, err := fs.OpenRead(ctx, jail.RootWizards, rel)
	if err != nil {
		return err
	}
	defer r.Close()
	return decodeJSON(r, dst)
}
