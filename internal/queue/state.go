package queue

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// Mode is the queue's admission mode, persisted in the single
// import/engine/queue.json document under the Jobs root.
type Mode string

const (
	ModePaused  Mode = "paused"
	ModeRunning Mode = "running"
)

// State is the persisted queue control document, grounded on the
// original's ImportQueueState.
type State struct {
	Mode Mode `json:"mode"`
}

const queueStateRelPath = "import/engine/queue.json"

// StateStore persists the queue's paused/running mode under the Jobs root.
type StateStore struct {
	fs *jail.FileService
}

// NewStateStore constructs a StateStore over fs, bootstrapping a
// running-mode queue.json if one does not already exist.
func NewStateStore(ctx context.Context, fs *jail.FileService) (*StateStore, error) {
	s := &StateStore{fs: fs}
	if !fs.Exists(ctx, jail.RootJobs, queueStateRelPath) {
		if err := s.Save(ctx, State{Mode: ModeRunning}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads the current queue state, defaulting to "running" on any
// corruption or an unrecognized mode value.
func (s *StateStore) Load(ctx context.Context) (State, error) {
	if !s.fs.Exists(ctx, jail.RootJobs, queueStateRelPath) {
		state := State{Mode: ModeRunning}
		return state, s.Save(ctx, state)
	}
	r, err := s.fs.OpenRead(ctx, jail.RootJobs, queueStateRelPath)
	if err != nil {
		return State{Mode: ModeRunning}, nil
	}
	defer r.Close()

	var raw struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return State{Mode: ModeRunning}, nil
	}
	mode := Mode(raw.Mode)
	if mode != ModePaused && mode != ModeRunning {
		mode = ModeRunning
	}
	return State{Mode: mode}, nil
}

// Save atomically persists state.
func (s *StateStore) Save(ctx context.Context, state State) error {
	return s.fs.AtomicWriteJSON(ctx, jail.RootJobs, queueStateRelPath, state)
}

// Pause sets the queue to paused mode.
func (s *StateStore) Pause(ctx context.Context) error {
	return s.Save(ctx, State{Mode: ModePaused})
}

// Resume sets the queue to running mode.
func (s *StateStore) Resume(ctx context.Context) error {
	return s.Save(ctx, State{Mode: ModeRunning})
}
