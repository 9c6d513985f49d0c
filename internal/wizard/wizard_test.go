package wizard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	wizards := filepath.Join(dir, "wizards")
	jobs := filepath.Join(dir, "jobs")
	stage := filepath.Join(dir, "stage")
	outbox := filepath.Join(dir, "outbox")
	for _, d := range []string{inbox, wizards, jobs, stage, outbox} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	fs, err := jail.NewFileService(jail.Roots{
		jail.RootInbox:   inbox,
		jail.RootWizards: wizards,
		jail.RootJobs:    jobs,
		jail.RootStage:   stage,
		jail.RootOutbox:  outbox,
	}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}

	bus := diagnostics.NewBus()
	disc := discovery.New(fs, bus)
	store := jobstore.NewStore(fs)
	jobSvc := jobstore.NewService(fs, store, bus)
	runStates := jobstore.NewRunStateStore(fs)

	return New(fs, bus, disc, jobSvc, runStates), inbox
}

func writeBook(t *testing.T, inbox, author, book, filename string) {
	t.Helper()
	dir := filepath.Join(inbox, author, book)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestCreateSessionIsDeterministicAndResumable(t *testing.T) {
	e, inbox := newTestEngine(t)
	writeBook(t, inbox, "Author One", "Book One", "track01.mp3")
	ctx := context.Background()

	params := CreateSessionParams{SourceRoot: "inbox", SourceRelativePath: "", Mode: "stage"}
	first, err := e.CreateSession(ctx, params)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if first.CurrentStepID != "select_authors" {
		t.Fatalf("expected entry step select_authors, got %s", first.CurrentStepID)
	}
	if first.Phase != 1 || first.Status != StatusInProgress {
		t.Fatalf("unexpected initial phase/status: %+v", first)
	}

	second, err := e.CreateSession(ctx, params)
	if err != nil {
		t.Fatalf("resume CreateSession failed: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected resume to reuse session id, got %s vs %s", second.SessionID, first.SessionID)
	}
}

func TestSubmitStepRejectsUnknownField(t *testing.T) {
	e, inbox := newTestEngine(t)
	writeBook(t, inbox, "Author One", "Book One", "track01.mp3")
	ctx := context.Background()

	st, err := e.CreateSession(ctx, CreateSessionParams{SourceRoot: "inbox", Mode: "stage"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := e.SubmitStep(ctx, st.SessionID, "select_authors", map[string]any{"bogus_field": true}); err == nil {
		t.Fatalf("expected unknown-field rejection")
	}
}

func TestSubmitStepRejectsStepMismatch(t *testing.T) {
	e, inbox := newTestEngine(t)
	writeBook(t, inbox, "Author One", "Book One", "track01.mp3")
	ctx := context.Background()

	st, err := e.CreateSession(ctx, CreateSessionParams{SourceRoot: "inbox", Mode: "stage"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := e.SubmitStep(ctx, st.SessionID, "select_books", map[string]any{}); err == nil {
		t.Fatalf("expected illegal-transition rejection for out-of-order submission")
	}
}

func TestFullFlowReachesProcessingAndStartsJobs(t *testing.T) {
	e, inbox := newTestEngine(t)
	writeBook(t, inbox, "Author One", "Book One", "track01.mp3")
	ctx := context.Background()

	st, err := e.CreateSession(ctx, CreateSessionParams{SourceRoot: "inbox", Mode: "stage"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	steps := []struct {
		id      string
		payload map[string]any
	}{
		{"select_authors", map[string]any{"author_ids_expr": "all"}},
		{"select_books", map[string]any{"book_ids_expr": "all"}},
		{"effective_author_title", map[string]any{}},
		{"filename_policy", map[string]any{"enabled": false}},
		{"covers_policy", map[string]any{"enabled": false}},
		{"id3_policy", map[string]any{"enabled": false}},
		{"audio_processing", map[string]any{"enabled": false}},
		{"publish_policy", map[string]any{"enabled": false}},
		{"delete_source_policy", map[string]any{"enabled": false}},
		{"conflict_policy", map[string]any{"mode": "overwrite"}},
		{"parallelism", map[string]any{"parallelism_n": 2}},
		{"final_summary_confirm", map[string]any{"confirm_start": true}},
	}

	for _, step := range steps {
		next, err := e.SubmitStep(ctx, st.SessionID, step.id, step.payload)
		if err != nil {
			t.Fatalf("submit %s failed: %v", step.id, err)
		}
		st = next
	}

	if st.CurrentStepID != "processing" {
		t.Fatalf("expected to reach processing, got %s (errors=%v)", st.CurrentStepID, st.Errors)
	}

	jobIDs, batchSize, err := e.StartProcessing(ctx, st.SessionID)
	if err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if batchSize != len(jobIDs) || batchSize == 0 {
		t.Fatalf("expected non-empty batch, got %d job ids", batchSize)
	}

	jobIDs2, batchSize2, err := e.StartProcessing(ctx, st.SessionID)
	if err != nil {
		t.Fatalf("second StartProcessing failed: %v", err)
	}
	if batchSize2 != batchSize || len(jobIDs2) != len(jobIDs) {
		t.Fatalf("expected idempotent re-entry, got %d vs %d jobs", batchSize2, batchSize)
	}
	for i := range jobIDs {
		if jobIDs[i] != jobIDs2[i] {
			t.Fatalf("expected identical job ids across calls, got %v vs %v", jobIDs, jobIDs2)
		}
	}
}

func TestPreviewActionIsCachedAndNonMutating(t *testing.T) {
	e, inbox := newTestEngine(t)
	writeBook(t, inbox, "Author One", "Book One", "track01.mp3")
	ctx := context.Background()

	st, err := e.CreateSession(ctx, CreateSessionParams{SourceRoot: "inbox", Mode: "stage"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	payload := map[string]any{"author_ids_expr": "all"}
	first, err := e.PreviewAction(ctx, st.SessionID, "select_authors", payload)
	if err != nil {
		t.Fatalf("PreviewAction failed: %v", err)
	}
	second, err := e.PreviewAction(ctx, st.SessionID, "select_authors", payload)
	if err != nil {
		t.Fatalf("second PreviewAction failed: %v", err)
	}
	if first.PreviewID != second.PreviewID {
		t.Fatalf("expected identical preview id for identical inputs")
	}

	reloaded, err := e.GetState(ctx, st.SessionID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if reloaded.CurrentStepID != "select_authors" {
		t.Fatalf("PreviewAction must not advance current_step_id, got %s", reloaded.CurrentStepID)
	}
}
