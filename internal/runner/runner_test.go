package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/registry"
)

func newTestEngine(t *testing.T) (*Engine, *jail.FileService, string) {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	stage := filepath.Join(dir, "stage")
	wizards := filepath.Join(dir, "wizards")
	jobs := filepath.Join(dir, "jobs")
	for _, d := range []string{inbox, stage, wizards, jobs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	fs, err := jail.NewFileService(jail.Roots{
		jail.RootInbox:   inbox,
		jail.RootStage:   stage,
		jail.RootWizards: wizards,
		jail.RootJobs:    jobs,
	}, nil)
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}

	bus := diagnostics.NewBus()
	disc := discovery.New(fs, bus)
	reg := registry.New(fs, bus)
	runStates := jobstore.NewRunStateStore(fs)

	return New(fs, bus, disc, reg, runStates), fs, inbox
}

func TestHandleStagesBookAndMarksRegistryOnce(t *testing.T) {
	e, fs, inbox := newTestEngine(t)
	ctx := context.Background()

	bookDir := filepath.Join(inbox, "Author One", "Book One")
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "track01.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	runState := jobstore.ImportRunState{
		SourceHandlingMode:      jobstore.ModeStage,
		ParallelismN:            1,
		ProcessedRegistryPolicy: jobstore.ProcessedRegistryPolicy{Enabled: true, Scope: "book_folder"},
	}
	if err := e.runStates.Put(ctx, "run-1", runState); err != nil {
		t.Fatalf("Put run state: %v", err)
	}

	rec := &jobstore.Record{
		JobID: "job-1",
		Type:  jobstore.JobTypeImport,
		State: jobstore.StateRunning,
		Meta: jobstore.Meta{
			RunID:       "run-1",
			SourceRoot:  string(jail.RootInbox),
			BookRelPath: "Author One/Book One",
			Mode:        "stage",
			UnitType:    "dir",
		},
	}

	notCancelled := func() bool { return false }

	opts, err := e.Handle(ctx, rec, notCancelled)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if opts.Error != "" {
		t.Fatalf("unexpected opts.Error: %s", opts.Error)
	}

	if !fs.Exists(ctx, jail.RootStage, "import/stage/job-1/Author One/Book One/track01.mp3") {
		t.Fatalf("expected staged copy of track01.mp3")
	}
	if !fs.Exists(ctx, jail.RootInbox, "Author One/Book One/track01.mp3") {
		t.Fatalf("stage mode without delete_source must leave the source untouched")
	}

	keys, err := e.registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one registry entry, got %v", keys)
	}

	rec2 := *rec
	rec2.JobID = "job-2"
	opts2, err := e.Handle(ctx, &rec2, notCancelled)
	if err != nil {
		t.Fatalf("second Handle failed: %v", err)
	}
	if opts2.Error != "" {
		t.Fatalf("unexpected opts2.Error: %s", opts2.Error)
	}
	if fs.Exists(ctx, jail.RootStage, "import/stage/job-2/Author One/Book One/track01.mp3") {
		t.Fatalf("a second job against an already-processed book must not re-stage it")
	}

	keysAfter, err := e.registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keysAfter) != 1 {
		t.Fatalf("expected the registry to stay single-entry after a repeat job, got %v", keysAfter)
	}
}

func TestHandleRejectsMissingRunState(t *testing.T) {
	e, _, inbox := newTestEngine(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(inbox, "A", "B"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "A", "B", "t.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := &jobstore.Record{
		JobID: "job-x",
		Type:  jobstore.JobTypeImport,
		State: jobstore.StateRunning,
		Meta: jobstore.Meta{
			RunID:       "no-such-run",
			SourceRoot:  string(jail.RootInbox),
			BookRelPath: "A/B",
			Mode:        "stage",
			UnitType:    "dir",
		},
	}
	if _, err := e.Handle(ctx, rec, func() bool { return false }); err == nil {
		t.Fatalf("expected an error for a job whose run_id has no persisted ImportRunState")
	}
}

func TestHandleStopsBeforeCopyWhenCancelled(t *testing.T) {
	e, fs, inbox := newTestEngine(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(inbox, "A", "B"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "A", "B", "t.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := e.runStates.Put(ctx, "run-2", jobstore.ImportRunState{SourceHandlingMode: jobstore.ModeStage}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := &jobstore.Record{
		JobID: "job-c",
		Type:  jobstore.JobTypeImport,
		Meta: jobstore.Meta{
			RunID:       "run-2",
			SourceRoot:  string(jail.RootInbox),
			BookRelPath: "A/B",
			Mode:        "stage",
			UnitType:    "dir",
		},
	}
	opts, err := e.Handle(ctx, rec, func() bool { return true })
	if err != nil {
		t.Fatalf("Handle returned an error for a cooperative cancellation: %v", err)
	}
	if opts.Error != "" {
		t.Fatalf("unexpected opts.Error: %s", opts.Error)
	}
	if fs.Exists(ctx, jail.RootStage, "import/stage/job-c/A/B/t.mp3") {
		t.Fatalf("a cancelled job must not have copied anything")
	}
}
