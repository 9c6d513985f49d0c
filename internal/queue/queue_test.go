package queue

import (
	"context"
	"testing"
	"time"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
)

func newHarness(t *testing.T) (*jail.FileService, *jobstore.Store, *jobstore.Service, *jobstore.RunStateStore, *StateStore) {
	t.Helper()
	fs, err := jail.NewFileService(jail.Roots{jail.RootJobs: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	store := jobstore.NewStore(fs)
	svc := jobstore.NewService(fs, store, nil)
	runStates := jobstore.NewRunStateStore(fs)
	ctx := context.Background()
	qs, err := NewStateStore(ctx, fs)
	if err != nil {
		t.Fatalf("NewStateStore failed: %v", err)
	}
	return fs, store, svc, runStates, qs
}

func TestAcquireLockExcludesSecondProcess(t *testing.T) {
	fs, _, _, _, _ := newHarness(t)
	ctx := context.Background()

	l1, err := AcquireLock(ctx, fs, "inbox:.")
	if err != nil {
		t.Fatalf("first AcquireLock failed: %v", err)
	}
	if _, err := AcquireLock(ctx, fs, "inbox:."); err == nil {
		t.Error("expected second AcquireLock to fail")
	}
	if err := l1.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	l2, err := AcquireLock(ctx, fs, "inbox:.")
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
	l2.Release(ctx)
}

func TestQueueStatePauseResume(t *testing.T) {
	_, _, _, _, qs := newHarness(t)
	ctx := context.Background()

	state, err := qs.Load(ctx)
	if err != nil || state.Mode != ModeRunning {
		t.Fatalf("expected default running mode: %+v %v", state, err)
	}
	if err := qs.Pause(ctx); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	state, _ = qs.Load(ctx)
	if state.Mode != ModePaused {
		t.Errorf("expected paused mode, got %s", state.Mode)
	}
	if err := qs.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	state, _ = qs.Load(ctx)
	if state.Mode != ModeRunning {
		t.Errorf("expected running mode, got %s", state.Mode)
	}
}

func TestPoolSkipsJobsWithoutRunState(t *testing.T) {
	_, store, svc, runStates, qs := newHarness(t)
	ctx := context.Background()

	rec, _, err := svc.GetOrCreate(ctx, "sess-1", jobstore.JobTypeImport, "key-1", jobstore.Meta{RunID: "run-missing"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	executed := make(chan string, 1)
	pool := NewPool(store, svc, runStates, qs, nil, 1, func(ctx context.Context, rec *jobstore.Record, cancelled func() bool) (jobstore.TransitionOpts, error) {
		executed <- rec.JobID
		return jobstore.TransitionOpts{}, nil
	})
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case <-executed:
		t.Fatal("job should not have been claimed without a matching ImportRunState")
	case <-time.After(300 * time.Millisecond):
	}

	still, err := store.Get(ctx, rec.JobID)
	if err != nil || still.State != jobstore.StatePending {
		t.Fatalf("expected job to remain PENDING, got %+v err=%v", still, err)
	}
}

func TestPoolRunsAdmittedJob(t *testing.T) {
	_, store, svc, runStates, qs := newHarness(t)
	ctx := context.Background()

	runID := "run-ok"
	if err := runStates.Put(ctx, runID, jobstore.ImportRunState{
		SourceSelectionSnapshot: map[string]any{},
		SourceHandlingMode:      jobstore.ModeStage,
		ParallelismN:            1,
	}); err != nil {
		t.Fatalf("Put run state failed: %v", err)
	}

	rec, _, err := svc.GetOrCreate(ctx, "sess-2", jobstore.JobTypeImport, "key-2", jobstore.Meta{RunID: runID})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	executed := make(chan string, 1)
	pool := NewPool(store, svc, runStates, qs, nil, 1, func(ctx context.Context, rec *jobstore.Record, cancelled func() bool) (jobstore.TransitionOpts, error) {
		executed <- rec.JobID
		return jobstore.TransitionOpts{}, nil
	})
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case gotID := <-executed:
		if gotID != rec.JobID {
			t.Errorf("expected job %s, got %s", rec.JobID, gotID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was never claimed")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		done, err := store.Get(ctx, rec.JobID)
		if err == nil && done.State == jobstore.StateSucceeded {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached SUCCEEDED")
}

func TestRetryPreservesPriorJob(t *testing.T) {
	_, store, svc, runStates, qs := newHarness(t)
	ctx := context.Background()

	rec, _, _ := svc.GetOrCreate(ctx, "sess-3", jobstore.JobTypeImport, "key-3", jobstore.Meta{RunID: "run-x"})
	svc.Transition(ctx, rec.JobID, jobstore.StateRunning, jobstore.TransitionOpts{})
	svc.Transition(ctx, rec.JobID, jobstore.StateFailed, jobstore.TransitionOpts{Error: "boom"})

	pool := NewPool(store, svc, runStates, qs, nil, 1, nil)
	retried, err := pool.Retry(ctx, rec.JobID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Meta.RetryOf != rec.JobID {
		t.Errorf("expected retry_of to reference prior job, got %q", retried.Meta.RetryOf)
	}
	if retried.State != jobstore.StatePending {
		t.Errorf("expected new job to be PENDING, got %s", retried.State)
	}

	prior, err := store.Get(ctx, rec.JobID)
	if err != nil {
		t.Fatalf("Get prior failed: %v", err)
	}
	if prior.State != jobstore.StateFailed {
		t.Errorf("expected prior job state preserved as FAILED, got %s", prior.State)
	}
}

func TestCancelPendingJob(t *testing.T) {
	_, store, svc, runStates, qs := newHarness(t)
	ctx := context.Background()

	rec, _, _ := svc.GetOrCreate(ctx, "sess-4", jobstore.JobTypeImport, "key-4", jobstore.Meta{RunID: "run-y"})
	pool := NewPool(store, svc, runStates, qs, nil, 1, nil)

	if err := pool.Cancel(ctx, rec.JobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	cancelled, err := store.Get(ctx, rec.JobID)
	if err != nil || cancelled.State != jobstore.StateCancelled {
		t.Fatalf("expected job CANCELLED, got %+v err=%v", cancelled, err)
	}

	if err := pool.Cancel(ctx, rec.JobID); err == nil {
		t.Error("expected cancelling an already-terminal job to fail")
	}
}
