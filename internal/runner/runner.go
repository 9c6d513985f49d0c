// Package runner implements Component I: the per-book job handler a
// queue.Pool worker drives to completion. It is non-interactive by
// construction — every decision a job needs was already made during
// phase 1 and carried here through jobstore.Meta and ImportRunState.
package runner

import (
	"context"
	"sort"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/registry"
)

var audioExt = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".flac": true,
	".wav": true, ".ogg": true, ".opus": true,
}

// Engine executes one selected book's staging-or-inplace copy, optional
// audio re-encode, optional guarded source deletion, and exactly-once
// registry admission for a single jobstore.Record. Its Handle method is
// the queue.Handler a Pool drives.
type Engine struct {
	fs        *jail.FileService
	bus       *diagnostics.Bus
	disc      *discovery.Service
	registry  *registry.Registry
	runStates *jobstore.RunStateStore
}

// New constructs an Engine.
func New(fs *jail.FileService, bus *diagnostics.Bus, disc *discovery.Service, reg *registry.Registry, runStates *jobstore.RunStateStore) *Engine {
	return &Engine{fs: fs, bus: bus, disc: disc, registry: reg, runStates: runStates}
}

// Handle matches queue.Handler's signature. It never transitions rec's
// state itself — the Pool does that from Handle's return value — so
// every early return here just reports success or failure, leaving
// cancellation detection to the Pool's post-call check of cancelled().
func (e *Engine) Handle(ctx context.Context, rec *jobstore.Record, cancelled func() bool) (opts jobstore.TransitionOpts, err error) {
	obs, ctx := e.observe(ctx, "run_import_job", map[string]any{
		"job_id": rec.JobID, "book_rel_path": rec.Meta.BookRelPath, "mode": rec.Meta.Mode,
	})
	defer obs.End(&err)

	runState, found, err := e.runStates.Get(ctx, rec.Meta.RunID)
	if err != nil {
		return opts, err
	}
	if !found {
		return opts, wizardErrRunStateMissing(rec.Meta.RunID)
	}

	sourceRoot := jail.RootName(rec.Meta.SourceRoot)
	bookRelPath := rec.Meta.BookRelPath
	unitType := e.resolveUnitType(ctx, rec, sourceRoot, bookRelPath)

	identityKey, err := e.identityKey(ctx, sourceRoot, bookRelPath, unitType)
	if err != nil {
		return opts, err
	}

	if e.registry.IsProcessed(ctx, identityKey) {
		obs.Summary()["skipped"] = true
		return jobstore.TransitionOpts{}, nil
	}
	if cancelled() {
		return opts, nil
	}

	targetRoot, targetRel, err := e.stageOrInplace(ctx, rec, sourceRoot, bookRelPath, unitType, runState, &opts)
	if err != nil {
		return opts, err
	}
	if cancelled() {
		return opts, nil
	}

	if ap, ok := runState.GlobalOptions["audio_processing"].(map[string]any); ok {
		if err := e.runAudioProcessing(ctx, targetRoot, targetRel, unitType, runState.SourceHandlingMode, ap, &opts, cancelled); err != nil {
			return opts, err
		}
	}
	if cancelled() {
		return opts, nil
	}

	if runState.SourceHandlingMode == jobstore.ModeStage {
		if deleteSource, _ := runState.GlobalOptions["delete_source"].(bool); deleteSource {
			e.guardedDeleteSource(ctx, sourceRoot, bookRelPath, unitType, identityKey, &opts)
		}
	}

	if err := e.registry.Mark(ctx, identityKey); err != nil {
		opts.Warnings = append(opts.Warnings, "processed_registry_mark_failed: "+err.Error())
	}

	obs.Summary()["status"] = "succeeded"
	return opts, nil
}

func (e *Engine) observe(ctx context.Context, op string, base map[string]any) (*diagnostics.Observation, context.Context) {
	return e.bus.Observe(ctx, "import.runner", op, base)
}

// resolveUnitType trusts jobstore.Meta first (carried from preflight
// through the engine into job meta); a missing value falls back to a
// filesystem stat, matching the original's best-effort fallback.
func (e *Engine) resolveUnitType(ctx context.Context, rec *jobstore.Record, sourceRoot jail.RootName, bookRelPath string) string {
	if rec.Meta.UnitType == "dir" || rec.Meta.UnitType == "file" {
		return rec.Meta.UnitType
	}
	st, err := e.fs.Stat(ctx, sourceRoot, bookRelPath)
	if err != nil {
		return "dir"
	}
	if st.IsDir {
		return "dir"
	}
	return "file"
}

func (e *Engine) identityKey(ctx context.Context, root jail.RootName, rel, unitType string) (string, error) {
	if unitType == "file" {
		fp, err := e.disc.FingerprintFileChecksum(ctx, root, rel)
		if err != nil {
			return "", err
		}
		return fingerprint.FingerprintKey(fp.Algo, fp.Value), nil
	}
	fp, err := e.disc.FingerprintDirChecksum(ctx, root, rel)
	if err != nil {
		return "", err
	}
	return fingerprint.FingerprintKey(fp.Algo, fp.Value), nil
}

func extOf(rel string) string {
	name := rel
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

func fileStem(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func sortedFiles(entries []jail.FileEntry) []string {
	files := make([]string, 0, len(entries))
	for _, en := range entries {
		if !en.IsDir {
			files = append(files, en.RelPath)
		}
	}
	sort.Strings(files)
	return files
}
