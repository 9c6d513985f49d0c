package jobstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// SourceHandlingMode is how a run moves (or does not move) source bytes.
type SourceHandlingMode string

const (
	ModeStage   SourceHandlingMode = "stage"
	ModeInplace SourceHandlingMode = "inplace"
	ModeHybrid  SourceHandlingMode = "hybrid"
)

// ProcessedRegistryPolicy controls whether and at what granularity a run
// consults the processed-artifact registry.
type ProcessedRegistryPolicy struct {
	Enabled bool   `json:"enabled"`
	Scope   string `json:"scope"`
}

// PreflightCacheMetadata records whether a run's discovery pass hit the
// deep-enrichment cache.
type PreflightCacheMetadata struct {
	CacheKey string `json:"cache_key,omitempty"`
	CacheHit bool   `json:"cache_hit"`
}

// ImportRunState is wizard-job-scoped runtime configuration, keyed by
// run id (distinct from SessionState, which the wizard engine owns).
// The queue's worker pool looks this up before admitting a PENDING
// import job for that run_id.
type ImportRunState struct {
	SourceSelectionSnapshot     map[string]any          `json:"source_selection_snapshot"`
	SourceHandlingMode          SourceHandlingMode      `json:"source_handling_mode"`
	ParallelismN                int                     `json:"parallelism_n"`
	GlobalOptions               map[string]any          `json:"global_options,omitempty"`
	ConflictPolicy              map[string]any          `json:"conflict_policy,omitempty"`
	FilenameNormalizationPolicy map[string]any          `json:"filename_normalization_policy,omitempty"`
	DefaultsMemory              map[string]any          `json:"defaults_memory,omitempty"`
	ProcessedRegistryPolicy     ProcessedRegistryPolicy `json:"processed_registry_policy"`
	PublicDBLookup              map[string]any          `json:"public_db_lookup,omitempty"`
	PreflightCache              PreflightCacheMetadata  `json:"preflight_cache"`
}

func defaultImportRunState() ImportRunState {
	return ImportRunState{
		SourceSelectionSnapshot: map[string]any{},
		SourceHandlingMode:      ModeStage,
		ParallelismN:            1,
		ProcessedRegistryPolicy: ProcessedRegistryPolicy{Enabled: true, Scope: "book_folder"},
	}
}

const runStateDir = "import/session_store/run_state"

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func runStateRelPath(runID string) string {
	return runStateDir + "/" + sanitizeSegment(runID) + ".json"
}

// RunStateStore persists ImportRunState under the Jobs root, keyed by
// wizard run id.
type RunStateStore struct {
	fs *jail.FileService
}

// NewRunStateStore constructs a RunStateStore over fs.
func NewRunStateStore(fs *jail.FileService) *RunStateStore {
	return &RunStateStore{fs: fs}
}

// Put atomically persists state for runID.
func (s *RunStateStore) Put(ctx context.Context, runID string, state ImportRunState) error {
	return s.fs.AtomicWriteJSON(ctx, jail.RootJobs, runStateRelPath(runID), state)
}

// Get returns the run state for runID, or (zero, false, nil) if none has
// been written yet. A missing state is NOT an error: per SPEC_FULL.md
// §4.E.1, the queue treats this as "not yet admissible", not NOT_FOUND.
func (s *RunStateStore) Get(ctx context.Context, runID string) (ImportRunState, bool, error) {
	rel := runStateRelPath(runID)
	if !s.fs.Exists(ctx, jail.RootJobs, rel) {
		return ImportRunState{}, false, nil
	}
	r, err := s.fs.OpenRead(ctx, jail.RootJobs, rel)
	if err != nil {
		return ImportRunState{}, false, err
	}
	defer r.Close()

	state := defaultImportRunState()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&state); err != nil {
		return ImportRunState{}, false, err
	}
	return state, true, nil
}

// Delete removes a run's state, if present.
func (s *RunStateStore) Delete(ctx context.Context, runID string) error {
	rel := runStateRelPath(runID)
	if !s.fs.Exists(ctx, jail.RootJobs, rel) {
		return nil
	}
	return s.fs.DeleteFile(ctx, jail.RootJobs, rel)
}
