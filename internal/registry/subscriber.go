package registry

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// jobRequestsDoc is only the fields this subscriber needs to confirm a
// succeeded job's diag.job.end event actually traces back to a
// properly phase-2-admitted session; the single "import.batch" action
// it carries has no per-book identity of its own (see internal/jobrequest),
// so per-book admission below is driven by the job's own meta, not by
// this document's actions list.
type jobRequestsDoc struct {
	JobType string `json:"job_type"`
}

// Subscribe registers a diagnostics subscriber that admits a job's book
// identity key on diag.job.end events for succeeded import jobs, per
// spec.md §4.F. This is the decoupled admission path: the runner
// (Component I) also marks the registry directly on its own success
// path, so this subscriber is what keeps the registry consistent for
// any job whose direct Mark call never completed (a registry write that
// lost a race, or a prior run's job resumed by a fresh process).
// disc recomputes a book's identity key the same way the runner does,
// so both admission paths write into the same identity-key space.
func (r *Registry) Subscribe(bus *diagnostics.Bus, disc *discovery.Service) {
	bus.Subscribe("diag.job.end", func(env diagnostics.Envelope) {
		r.onJobEnd(env, disc)
	})
}

func (r *Registry) onJobEnd(env diagnostics.Envelope, disc *discovery.Service) {
	if str(env.Data["status"]) != "succeeded" {
		return
	}
	if str(env.Data["job_type"]) != "import" {
		return
	}
	if str(env.Data["meta.source"]) != "wizard" {
		return
	}

	jobRequestsPath := str(env.Data["meta.job_requests_path"])
	sourceRoot := str(env.Data["meta.source_root"])
	bookRelPath := str(env.Data["meta.book_rel_path"])
	if jobRequestsPath == "" || sourceRoot == "" || bookRelPath == "" {
		return
	}

	ctx := context.Background()
	if !r.jobRequestsLooksValid(ctx, jobRequestsPath) {
		return
	}

	unitType := str(env.Data["meta.unit_type"])
	if unitType != "file" {
		unitType = "dir"
		if st, err := r.fs.Stat(ctx, jail.RootName(sourceRoot), bookRelPath); err == nil && !st.IsDir {
			unitType = "file"
		}
	}

	var (
		fp  discovery.BookFingerprint
		err error
	)
	if unitType == "file" {
		fp, err = disc.FingerprintFileChecksum(ctx, jail.RootName(sourceRoot), bookRelPath)
	} else {
		fp, err = disc.FingerprintDirChecksum(ctx, jail.RootName(sourceRoot), bookRelPath)
	}
	if err != nil {
		return
	}

	r.Mark(ctx, fingerprint.FingerprintKey(fp.Algo, fp.Value))
}

// jobRequestsLooksValid confirms the referenced job_requests.json exists
// under the wizards root and is the document this subscriber expects,
// without relying on any action inside it.
func (r *Registry) jobRequestsLooksValid(ctx context.Context, rel string) bool {
	if !r.fs.Exists(ctx, jail.RootWizards, rel) {
		return false
	}
	f, err := r.fs.OpenRead(ctx, jail.RootWizards, rel)
	if err != nil {
		return false
	}
	defer f.Close()

	var doc jobRequestsDoc
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return false
	}
	return doc.JobType == "import.process"
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
