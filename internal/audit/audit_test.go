package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestFS(t *testing.T) *jail.FileService {
	t.Helper()
	dir := t.TempDir()
	wizards := filepath.Join(dir, "wizards")
	if err := os.MkdirAll(wizards, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fs, err := jail.NewFileService(jail.Roots{jail.RootWizards: wizards}, nil)
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}
	return fs
}

func readLines(t *testing.T, fs *jail.FileService, rel string) []Entry {
	t.Helper()
	ctx := context.Background()
	r, err := fs.OpenRead(ctx, jail.RootWizards, rel)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	var entries []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return entries
}

func TestAppendIsOrderedAndNeverRewrites(t *testing.T) {
	fs := newTestFS(t)
	trail := New(fs, "import/sessions/sess-1")
	ctx := context.Background()

	if err := trail.Append(ctx, "2026-01-01T00:00:00Z", "select_authors", map[string]any{"author_ids": []any{"a1"}}, "accepted", ""); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := trail.Append(ctx, "2026-01-01T00:00:01Z", "select_books", nil, "rejected", "unknown field"); err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	entries := readLines(t, fs, "import/sessions/sess-1/decisions.jsonl")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].StepID != "select_authors" || entries[0].Result != "accepted" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].StepID != "select_books" || entries[1].Result != "rejected" || entries[1].Error != "unknown field" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestAppendIsolatesSessionsByDirectory(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	a := New(fs, "import/sessions/sess-a")
	b := New(fs, "import/sessions/sess-b")

	if err := a.Append(ctx, "2026-01-01T00:00:00Z", "select_authors", nil, "accepted", ""); err != nil {
		t.Fatalf("Append a: %v", err)
	}
	if err := b.Append(ctx, "2026-01-01T00:00:00Z", "select_books", nil, "accepted", ""); err != nil {
		t.Fatalf("Append b: %v", err)
	}

	aEntries := readLines(t, fs, "import/sessions/sess-a/decisions.jsonl")
	bEntries := readLines(t, fs, "import/sessions/sess-b/decisions.jsonl")
	if len(aEntries) != 1 || aEntries[0].StepID != "select_authors" {
		t.Fatalf("unexpected session a entries: %+v", aEntries)
	}
	if len(bEntries) != 1 || bEntries[0].StepID != "select_books" {
		t.Fatalf("unexpected session b entries: %+v", bEntries)
	}
}
