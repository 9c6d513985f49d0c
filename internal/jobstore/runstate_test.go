package jobstore

import (
	"context"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestFS(t *testing.T) *jail.FileService {
	t.Helper()
	fs, err := jail.NewFileService(jail.Roots{jail.RootJobs: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	return fs
}

func TestRunStateGetMissingIsNotError(t *testing.T) {
	fs := newTestFS(t)
	store := NewRunStateStore(fs)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "run-unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no run state to be found")
	}
}

func TestRunStatePutGetRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	store := NewRunStateStore(fs)
	ctx := context.Background()

	state := defaultImportRunState()
	state.SourceHandlingMode = ModeInplace
	state.ParallelismN = 4

	if err := store.Put(ctx, "run-1", state); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := store.Get(ctx, "run-1")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	if got.SourceHandlingMode != ModeInplace || got.ParallelismN != 4 {
		t.Errorf("unexpected round trip: %+v", got)
	}
}

func TestDefaultsStoreRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	store := NewDefaultsStore(fs)
	ctx := context.Background()

	if got, err := store.Get(ctx, "import", "stage"); err != nil || got != nil {
		t.Fatalf("expected no defaults initially: %v %v", got, err)
	}

	if err := store.Put(ctx, "import", "stage", map[string]any{"conflict_policy": "ask"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := store.Get(ctx, "import", "stage")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["conflict_policy"] != "ask" {
		t.Errorf("unexpected defaults: %+v", got)
	}

	if err := store.Reset(ctx, "import", "stage"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got, _ := store.Get(ctx, "import", "stage"); got != nil {
		t.Error("expected defaults to be cleared after reset")
	}
}
