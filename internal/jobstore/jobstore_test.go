package jobstore

import (
	"context"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	fs, err := jail.NewFileService(jail.Roots{jail.RootJobs: dir, jail.RootWizards: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	store := NewStore(fs)
	return NewService(fs, store, nil)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec1, created1, err := svc.GetOrCreate(ctx, "sess-1", JobTypeImport, "key-abc", Meta{Mode: "stage"})
	if err != nil || !created1 {
		t.Fatalf("expected creation: created=%v err=%v", created1, err)
	}

	rec2, created2, err := svc.GetOrCreate(ctx, "sess-1", JobTypeImport, "key-abc", Meta{Mode: "stage"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created2 {
		t.Error("expected no new job on repeated idempotency key")
	}
	if rec1.JobID != rec2.JobID {
		t.Errorf("expected same job id, got %s vs %s", rec1.JobID, rec2.JobID)
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, _, err := svc.GetOrCreate(ctx, "sess-2", JobTypeProcess, "key-1", Meta{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, err := svc.Transition(ctx, rec.JobID, StateSucceeded, TransitionOpts{}); err == nil {
		t.Error("expected illegal transition PENDING->SUCCEEDED to be rejected")
	}

	running, err := svc.Transition(ctx, rec.JobID, StateRunning, TransitionOpts{})
	if err != nil {
		t.Fatalf("Transition to RUNNING failed: %v", err)
	}
	if running.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}

	code := 0
	done, err := svc.Transition(ctx, rec.JobID, StateSucceeded, TransitionOpts{ReturnCode: &code})
	if err != nil {
		t.Fatalf("Transition to SUCCEEDED failed: %v", err)
	}
	if done.FinishedAt == nil || done.Progress != 1 {
		t.Errorf("unexpected terminal record: %+v", done)
	}

	if _, err := svc.Transition(ctx, rec.JobID, StateRunning, TransitionOpts{}); err == nil {
		t.Error("expected transitions out of a terminal state to be rejected")
	}
}

func TestListReturnsEveryRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.GetOrCreate(ctx, "sess-3", JobTypeProcess, string(rune('a'+i)), Meta{}); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}

	recs, err := svc.store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
}

func TestAppendLogSucceeds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, _, _ := svc.GetOrCreate(ctx, "sess-4", JobTypeProcess, "k", Meta{})
	if err := svc.store.AppendLog(ctx, rec.JobID, "extra line"); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
}
