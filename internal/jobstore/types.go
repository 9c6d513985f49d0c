// Package jobstore persists job records and their append-only logs under
// the Jobs root, and tracks the idempotency-key-to-job-id mapping each
// import session keeps alongside its other artifacts.
package jobstore

// JobType distinguishes a standalone re-encode job from an import job.
type JobType string

const (
	JobTypeProcess JobType = "PROCESS"
	JobTypeImport  JobType = "IMPORT"
)

// State is a job's position in its state machine.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// terminal reports whether a state has no further legal transitions.
func (s State) terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// legalNext is the state machine's adjacency list: PENDING can only move
// to RUNNING or CANCELLED (a cancel before the worker picks it up);
// RUNNING resolves to one of the three terminal states.
var legalNext = map[State]map[State]bool{
	StatePending: {StateRunning: true, StateCancelled: true},
	StateRunning: {StateSucceeded: true, StateFailed: true, StateCancelled: true},
}

func (s State) canTransitionTo(next State) bool {
	allowed, ok := legalNext[s]
	return ok && allowed[next]
}

// Meta carries the job's provenance and execution parameters. Fields are
// optional depending on JobType and on how far the job has progressed.
type Meta struct {
	Source          string `json:"source,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
	JobRequestsPath string `json:"job_requests_path,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	SourceRoot      string `json:"source_root,omitempty"`
	BookRelPath     string `json:"book_rel_path,omitempty"`
	Mode            string `json:"mode,omitempty"`
	UnitType        string `json:"unit_type,omitempty"`
	DecisionJSON    string `json:"decision_json,omitempty"`
	RetryOf         string `json:"retry_of,omitempty"`
	WorkerID        string `json:"worker_id,omitempty"`
}

// Record is the persisted shape of one job: <job_id>.json under the Jobs root.
type Record struct {
	JobID      string   `json:"job_id"`
	Type       JobType  `json:"type"`
	State      State    `json:"state"`
	Meta       Meta     `json:"meta"`
	CreatedAt  int64    `json:"created_at"`
	StartedAt  *int64   `json:"started_at,omitempty"`
	FinishedAt *int64   `json:"finished_at,omitempty"`
	ReturnCode *int     `json:"return_code,omitempty"`
	Error      string   `json:"error,omitempty"`
	Progress   float64  `json:"progress"`
	Warnings   []string `json:"warnings,omitempty"`
}
