package jobstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// Store is a flat directory of job records under the Jobs root: one
// <job_id>.json (atomic, single-writer) plus one <job_id>.log (append-only
// bytes) per job. Reads are cached in memory; every write goes through the
// jailed filesystem's atomic-write primitive.
type Store struct {
	fs *jail.FileService

	mu    sync.RWMutex
	cache map[string]*Record
}

// NewStore constructs a Store backed by fs.
func NewStore(fs *jail.FileService) *Store {
	return &Store{fs: fs, cache: make(map[string]*Record)}
}

func recordPath(jobID string) string { return jobID + ".json" }
func logPath(jobID string) string    { return jobID + ".log" }

// Save atomically persists rec and refreshes the in-memory cache.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if err := s.fs.AtomicWriteJSON(ctx, jail.RootJobs, recordPath(rec.JobID), rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[rec.JobID] = rec
	s.mu.Unlock()
	return nil
}

// Get loads a job record by id, consulting the cache first.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	s.mu.RLock()
	if rec, ok := s.cache[jobID]; ok {
		s.mu.RUnlock()
		return rec, nil
	}
	s.mu.RUnlock()

	r, err := s.fs.OpenRead(ctx, jail.RootJobs, recordPath(jobID))
	if err != nil {
		return nil, wizarderr.NotFound("job not found: " + jobID)
	}
	defer r.Close()

	var rec Record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rec); err != nil {
		return nil, wizarderr.Internal("corrupt job record " + jobID + ": " + err.Error())
	}
	s.mu.Lock()
	s.cache[jobID] = &rec
	s.mu.Unlock()
	return &rec, nil
}

// List returns every job record, sorted by mtime descending with ties
// broken by job id, the order spec.md mandates for listing.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	entries, err := s.fs.List(ctx, jail.RootJobs, ".", false)
	if err != nil {
		return nil, err
	}
	type stamped struct {
		rec   *Record
		mtime int64
	}
	var stamped_ []stamped
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.RelPath, ".json") {
			continue
		}
		jobID := strings.TrimSuffix(e.RelPath, ".json")
		rec, err := s.Get(ctx, jobID)
		if err != nil {
			continue
		}
		var mtime int64
		if e.MTime != nil {
			mtime = *e.MTime
		}
		stamped_ = append(stamped_, stamped{rec: rec, mtime: mtime})
	}
	sort.Slice(stamped_, func(i, j int) bool {
		if stamped_[i].mtime != stamped_[j].mtime {
			return stamped_[i].mtime > stamped_[j].mtime
		}
		return stamped_[i].rec.JobID > stamped_[j].rec.JobID
	})
	out := make([]*Record, len(stamped_))
	for i, st := range stamped_ {
		out[i] = st.rec
	}
	return out, nil
}

// AppendLog appends one line (without a trailing newline) to the job's log.
func (s *Store) AppendLog(ctx context.Context, jobID, line string) error {
	w, err := s.fs.OpenAppend(ctx, jail.RootJobs, logPath(jobID), true)
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write([]byte(line + "\n"))
	return err
}

func nowUnixMilli() int64 { return time.Now().UnixMilli() }
