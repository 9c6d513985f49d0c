package jobstore

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

const defaultsDir = "import/session_store/defaults"

func defaultsRelPath(wizard, mode string) string {
	if wizard == "" {
		wizard = "wizard"
	}
	if mode == "" {
		mode = "mode"
	}
	return defaultsDir + "/" + sanitizeSegment(wizard) + "__" + sanitizeSegment(mode) + ".json"
}

// DefaultsStore remembers per-(wizard,mode) UI selections across sessions
// — e.g. a user's habitual conflict_policy choice — so new sessions can
// pre-fill step defaults. It must never hold processing results.
type DefaultsStore struct {
	fs *jail.FileService
}

// NewDefaultsStore constructs a DefaultsStore over fs.
func NewDefaultsStore(fs *jail.FileService) *DefaultsStore {
	return &DefaultsStore{fs: fs}
}

// Get returns the remembered defaults for (wizard, mode), or nil if none
// have been recorded yet.
func (s *DefaultsStore) Get(ctx context.Context, wizard, mode string) (map[string]any, error) {
	rel := defaultsRelPath(wizard, mode)
	if !s.fs.Exists(ctx, jail.RootJobs, rel) {
		return nil, nil
	}
	r, err := s.fs.OpenRead(ctx, jail.RootJobs, rel)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, nil
	}
	return out, nil
}

// Put atomically records defaults for (wizard, mode).
func (s *DefaultsStore) Put(ctx context.Context, wizard, mode string, defaults map[string]any) error {
	return s.fs.AtomicWriteJSON(ctx, jail.RootJobs, defaultsRelPath(wizard, mode), defaults)
}

// Reset deletes the remembered defaults for (wizard, mode), if present.
func (s *DefaultsStore) Reset(ctx context.Context, wizard, mode string) error {
	rel := defaultsRelPath(wizard, mode)
	if !s.fs.Exists(ctx, jail.RootJobs, rel) {
		return nil
	}
	return s.fs.DeleteFile(ctx, jail.RootJobs, rel)
}
