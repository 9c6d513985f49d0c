package queue

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// Handler executes one job's work. cancelled reports whether the job's
// cancellation flag has been raised; the handler must consult it at
// every externally observable boundary (copy-begin, audio-begin,
// delete-source-begin) per spec.md's level-triggered cancellation model.
type Handler func(ctx context.Context, rec *jobstore.Record, cancelled func() bool) (jobstore.TransitionOpts, error)

// Pool is the bounded worker pool that pulls PENDING import jobs whose
// run_id has a matching persisted ImportRunState and drives them through
// a Handler. Grounded on the teacher's goroutine+sync.WaitGroup fan-out
// idiom (internal/executor's agent dispatch), adapted from a one-shot
// fan-out over a known set into long-lived pull loops.
type Pool struct {
	store     *jobstore.Store
	svc       *jobstore.Service
	runStates *jobstore.RunStateStore
	queueState *StateStore
	bus       *diagnostics.Bus
	handler   Handler
	size      int
	poll      time.Duration

	mu          sync.Mutex
	cancelFlags map[string]*atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPool constructs a worker pool of the given size (already clamped to
// [1, CPU] by the caller per spec.md §5).
func NewPool(store *jobstore.Store, svc *jobstore.Service, runStates *jobstore.RunStateStore, queueState *StateStore, bus *diagnostics.Bus, size int, handler Handler) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		store:       store,
		svc:         svc,
		runStates:   runStates,
		queueState:  queueState,
		bus:         bus,
		handler:     handler,
		size:        size,
		poll:        200 * time.Millisecond,
		cancelFlags: make(map[string]*atomic.Bool),
		stopCh:      make(chan struct{}),
	}
}

// Start spawns the pool's fixed set of long-lived worker goroutines, each
// tagged with its own worker_id for diagnostics and job meta.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		workerID := uuid.NewString()
		go func(workerID string) {
			defer p.wg.Done()
			p.bus.SafePublish("worker.start", "queue", "pool.start", map[string]any{"worker_id": workerID})
			p.runWorker(ctx, workerID)
			p.bus.SafePublish("worker.stop", "queue", "pool.stop", map[string]any{"worker_id": workerID})
		}(workerID)
	}
}

// Stop signals every worker to exit after its current job (if any) and
// blocks until they have all returned.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		state, err := p.queueState.Load(ctx)
		if err == nil && state.Mode == ModePaused {
			sleep(p.stopCh, p.poll)
			continue
		}

		rec, ok := p.claimNext(ctx, workerID)
		if !ok {
			sleep(p.stopCh, p.poll)
			continue
		}
		p.execute(ctx, rec, workerID)
	}
}

func sleep(stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}

// claimNext picks the oldest eligible PENDING import job and transitions
// it to RUNNING, tagging it with workerID. The claim-then-transition
// sequence is guarded by a mutex so two in-process workers never both
// claim the same job; cross-process exclusion is the patches-root lock's
// job, acquired once before the pool ever starts.
func (p *Pool) claimNext(ctx context.Context, workerID string) (*jobstore.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recs, err := p.store.List(ctx)
	if err != nil {
		return nil, false
	}
	var candidates []*jobstore.Record
	for _, r := range recs {
		if r.State == jobstore.StatePending && r.Type == jobstore.JobTypeImport {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt < candidates[j].CreatedAt })

	for _, rec := range candidates {
		if rec.Meta.RunID == "" {
			continue
		}
		// §4.E.1 gate: a missing ImportRunState means "not yet admissible",
		// not a failure — leave the job PENDING for a later pass.
		if _, found, _ := p.runStates.Get(ctx, rec.Meta.RunID); !found {
			continue
		}
		cp := *rec
		cp.Meta.WorkerID = workerID
		if err := p.store.Save(ctx, &cp); err != nil {
			continue
		}
		updated, err := p.svc.Transition(ctx, cp.JobID, jobstore.StateRunning, jobstore.TransitionOpts{})
		if err != nil {
			continue
		}
		// p.mu is already held here, so the flag is stored directly.
		p.cancelFlags[updated.JobID] = &atomic.Bool{}
		return updated, true
	}
	return nil, false
}

func (p *Pool) registerCancelFlag(jobID string) *atomic.Bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	flag := &atomic.Bool{}
	p.cancelFlags[jobID] = flag
	return flag
}

func (p *Pool) clearCancelFlag(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancelFlags, jobID)
}

func (p *Pool) execute(ctx context.Context, rec *jobstore.Record, workerID string) {
	defer p.clearCancelFlag(rec.JobID)

	p.mu.Lock()
	flag := p.cancelFlags[rec.JobID]
	p.mu.Unlock()
	cancelled := func() bool { return flag != nil && flag.Load() }

	opts, err := p.handler(ctx, rec, cancelled)
	next := jobstore.StateSucceeded
	switch {
	case cancelled():
		next = jobstore.StateCancelled
	case err != nil:
		next = jobstore.StateFailed
		opts.Error = err.Error()
	}
	p.svc.Transition(ctx, rec.JobID, next, opts)
}

// Cancel raises a job's cancellation flag if it is currently RUNNING, or
// transitions it directly from PENDING to CANCELLED. A terminal job
// cannot be cancelled and yields ILLEGAL_TRANSITION, matching spec.md's
// queue-error policy.
func (p *Pool) Cancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	flag, running := p.cancelFlags[jobID]
	p.mu.Unlock()
	if running {
		flag.Store(true)
		return nil
	}

	rec, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.State != jobstore.StatePending {
		return wizarderr.IllegalTransition("job " + jobID + " cannot be cancelled from state " + string(rec.State))
	}
	_, err = p.svc.Transition(ctx, jobID, jobstore.StateCancelled, jobstore.TransitionOpts{})
	return err
}

// Retry creates a new PENDING job cloning priorJobID's meta, with
// meta.retry_of set to the prior job id. The prior job's record is left
// untouched — spec.md requires its state be preserved for audit.
func (p *Pool) Retry(ctx context.Context, priorJobID string) (*jobstore.Record, error) {
	prior, err := p.store.Get(ctx, priorJobID)
	if err != nil {
		return nil, err
	}
	meta := prior.Meta
	meta.RetryOf = priorJobID
	rec := &jobstore.Record{
		JobID:     uuid.NewString(),
		Type:      prior.Type,
		State:     jobstore.StatePending,
		Meta:      meta,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := p.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	p.bus.SafePublish("job.create", "queue", "retry", map[string]any{
		"job_id": rec.JobID, "retry_of": priorJobID,
	})
	p.store.AppendLog(ctx, rec.JobID, "retry of "+priorJobID)
	return rec, nil
}
