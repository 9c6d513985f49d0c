package jobstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// Service encapsulates job creation, state-machine-enforced transitions,
// append-logging, and the per-session idempotency-key-to-job-id mapping.
// Every mutation goes through Store, so every job artifact on disk is
// written atomically.
type Service struct {
	fs    *jail.FileService
	store *Store
	bus   *diagnostics.Bus

	// idempotencyMu serializes the read-modify-atomic-rewrite cycle on a
	// session's idempotency.json; the session file itself is single-writer
	// per spec, but two goroutines racing GetOrCreate for the same session
	// must not interleave that cycle.
	idempotencyMu sync.Mutex
}

// NewService constructs a Service over an already-open Store.
func NewService(fs *jail.FileService, store *Store, bus *diagnostics.Bus) *Service {
	return &Service{fs: fs, store: store, bus: bus}
}

func idempotencyRelPath(sessionID string) string {
	return "import/sessions/" + sessionID + "/idempotency.json"
}

func (s *Service) lookupIdempotency(ctx context.Context, sessionID, key string) (string, bool) {
	doc, err := s.fs.ReadJSON(ctx, jail.RootWizards, idempotencyRelPath(sessionID))
	if err != nil {
		return "", false
	}
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	jobID, ok := v.(string)
	return jobID, ok
}

func (s *Service) recordIdempotency(ctx context.Context, sessionID, key, jobID string) error {
	doc, err := s.fs.ReadJSON(ctx, jail.RootWizards, idempotencyRelPath(sessionID))
	if err != nil {
		doc = map[string]any{}
	}
	doc[key] = jobID
	return s.fs.AtomicWriteJSON(ctx, jail.RootWizards, idempotencyRelPath(sessionID), doc)
}

// GetOrCreate returns the existing job for (sessionID, idempotencyKey) if
// one was already created, or creates and persists a fresh PENDING job
// otherwise. This is the mechanism that makes repeated start_processing
// calls on an already-entered phase 2 idempotent: no duplicate job, no
// duplicate registry entry.
func (s *Service) GetOrCreate(ctx context.Context, sessionID string, jobType JobType, idempotencyKey string, meta Meta) (rec *Record, created bool, err error) {
	s.idempotencyMu.Lock()
	defer s.idempotencyMu.Unlock()

	if jobID, ok := s.lookupIdempotency(ctx, sessionID, idempotencyKey); ok {
		existing, err := s.store.Get(ctx, jobID)
		if err == nil {
			return existing, false, nil
		}
	}

	meta.SessionID = sessionID
	meta.IdempotencyKey = idempotencyKey
	rec = &Record{
		JobID:     uuid.NewString(),
		Type:      jobType,
		State:     StatePending,
		Meta:      meta,
		CreatedAt: nowUnixMilli(),
		Progress:  0,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, false, err
	}
	if err := s.recordIdempotency(ctx, sessionID, idempotencyKey, rec.JobID); err != nil {
		return nil, false, err
	}
	s.bus.SafePublish("job.create", "job_service", "create", map[string]any{
		"job_id": rec.JobID, "session_id": sessionID, "idempotency_key": idempotencyKey, "type": string(jobType),
	})
	s.store.AppendLog(ctx, rec.JobID, "created type="+string(jobType)+" session="+sessionID)
	return rec, true, nil
}

// Transition moves a job to next, enforcing the state machine
// PENDING -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED}. Any other
// transition is rejected with ILLEGAL_TRANSITION and leaves the record
// untouched, per spec.md's queue-error policy.
func (s *Service) Transition(ctx context.Context, jobID string, next State, opts TransitionOpts) (*Record, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.State.terminal() {
		return nil, wizarderr.IllegalTransition("job " + jobID + " is already terminal: " + string(rec.State))
	}
	if !rec.State.canTransitionTo(next) {
		return nil, wizarderr.IllegalTransition("cannot move job " + jobID + " from " + string(rec.State) + " to " + string(next))
	}

	cp := *rec
	cp.State = next
	now := nowUnixMilli()
	switch next {
	case StateRunning:
		cp.StartedAt = &now
	case StateSucceeded, StateFailed, StateCancelled:
		cp.FinishedAt = &now
		cp.ReturnCode = opts.ReturnCode
		cp.Error = opts.Error
		cp.Progress = 1
	}
	if len(opts.Warnings) > 0 {
		cp.Warnings = append(append([]string{}, cp.Warnings...), opts.Warnings...)
	}
	if err := s.store.Save(ctx, &cp); err != nil {
		return nil, err
	}

	s.bus.SafePublish("diag.job.start", "job_service", "transition", map[string]any{"job_id": jobID, "state": string(next)})
	if cp.State.terminal() {
		s.bus.SafePublish("diag.job.end", "job_service", "transition", map[string]any{
			"job_id":                 jobID,
			"state":                  string(next),
			"status":                 strings.ToLower(string(next)),
			"error":                  cp.Error,
			"job_type":               strings.ToLower(string(cp.Type)),
			"meta.source":            cp.Meta.Source,
			"meta.job_requests_path": cp.Meta.JobRequestsPath,
			"meta.source_root":       cp.Meta.SourceRoot,
			"meta.book_rel_path":     cp.Meta.BookRelPath,
			"meta.unit_type":         cp.Meta.UnitType,
		})
	}
	s.store.AppendLog(ctx, jobID, "state="+string(next))
	return &cp, nil
}

// TransitionOpts carries the optional fields a terminal transition sets.
type TransitionOpts struct {
	ReturnCode *int
	Error      string
	Warnings   []string
}

// SetProgress updates a running job's progress fraction without a state
// change; used by the runner to report incremental status.
func (s *Service) SetProgress(ctx context.Context, jobID string, progress float64) error {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	cp := *rec
	cp.Progress = progress
	return s.store.Save(ctx, &cp)
}
