package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newSubscriberTestFixture(t *testing.T) (*Registry, *discovery.Service, *diagnostics.Bus, string) {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	wizards := filepath.Join(dir, "wizards")
	for _, d := range []string{inbox, wizards} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	bus := diagnostics.NewBus()
	fs, err := jail.NewFileService(jail.Roots{jail.RootInbox: inbox, jail.RootWizards: wizards}, nil)
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}
	reg := New(fs, bus)
	disc := discovery.New(fs, bus)
	reg.Subscribe(bus, disc)
	return reg, disc, bus, inbox
}

func writeJobRequests(t *testing.T, reg *Registry, rel string) {
	t.Helper()
	ctx := context.Background()
	if err := reg.fs.AtomicWriteJSON(ctx, jail.RootWizards, rel, map[string]any{
		"job_type":    "import.process",
		"job_version": 1,
	}); err != nil {
		t.Fatalf("write job_requests: %v", err)
	}
}

func TestOnJobEndAdmitsSucceededImportJob(t *testing.T) {
	reg, _, bus, inbox := newSubscriberTestFixture(t)
	ctx := context.Background()

	bookDir := filepath.Join(inbox, "Author", "Book")
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "track.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	writeJobRequests(t, reg, "import/sessions/sess-1/job_requests.json")

	bus.SafePublish("diag.job.end", "job_service", "transition", map[string]any{
		"job_id":                 "job-1",
		"status":                 "succeeded",
		"job_type":               "import",
		"meta.source":            "wizard",
		"meta.job_requests_path": "import/sessions/sess-1/job_requests.json",
		"meta.source_root":       "inbox",
		"meta.book_rel_path":     "Author/Book",
		"meta.unit_type":         "dir",
	})

	keys, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one admitted key, got %v", keys)
	}
}

func TestOnJobEndIgnoresNonSucceededEvents(t *testing.T) {
	reg, _, bus, inbox := newSubscriberTestFixture(t)
	ctx := context.Background()

	bookDir := filepath.Join(inbox, "Author", "Book")
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeJobRequests(t, reg, "import/sessions/sess-2/job_requests.json")

	for _, status := range []string{"failed", "cancelled"} {
		bus.SafePublish("diag.job.end", "job_service", "transition", map[string]any{
			"job_id":                 "job-x",
			"status":                 status,
			"job_type":               "import",
			"meta.source":            "wizard",
			"meta.job_requests_path": "import/sessions/sess-2/job_requests.json",
			"meta.source_root":       "inbox",
			"meta.book_rel_path":     "Author/Book",
			"meta.unit_type":         "dir",
		})
	}

	keys, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no admitted keys for non-succeeded events, got %v", keys)
	}
}

func TestOnJobEndRequiresValidJobRequestsDocument(t *testing.T) {
	reg, _, bus, inbox := newSubscriberTestFixture(t)
	ctx := context.Background()

	bookDir := filepath.Join(inbox, "Author", "Book")
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// No job_requests.json written at all.

	bus.SafePublish("diag.job.end", "job_service", "transition", map[string]any{
		"job_id":                 "job-y",
		"status":                 "succeeded",
		"job_type":               "import",
		"meta.source":            "wizard",
		"meta.job_requests_path": "import/sessions/sess-missing/job_requests.json",
		"meta.source_root":       "inbox",
		"meta.book_rel_path":     "Author/Book",
		"meta.unit_type":         "dir",
	})

	keys, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no admission without a valid job_requests.json, got %v", keys)
	}
}
