package discovery

import (
	"context"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestService(t *testing.T) (*Service, *jail.FileService) {
	t.Helper()
	fs, err := jail.NewFileService(jail.Roots{
		jail.RootInbox: t.TempDir(),
		jail.RootJobs:  t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	return New(fs, nil), fs
}

func seedInbox(t *testing.T, fs *jail.FileService) {
	t.Helper()
	ctx := context.Background()
	files := []string{
		"AuthorOne/BookOne/track.mp3",
		"AuthorOne/BookOne/cover.jpg",
		"LooseBook/track1.mp3",
		"standalone.mp3",
		"readme.txt",
	}
	for _, f := range files {
		if err := fs.AtomicWrite(ctx, jail.RootInbox, f, []byte("x")); err != nil {
			t.Fatalf("seed %s failed: %v", f, err)
		}
	}
}

func TestRunClassifiesAuthorsBooksAndSkipped(t *testing.T) {
	svc, fs := newTestService(t)
	seedInbox(t, fs)
	ctx := context.Background()

	res, err := svc.Run(ctx, jail.RootInbox, ".")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Authors) != 1 || res.Authors[0] != "AuthorOne" {
		t.Fatalf("unexpected authors: %v", res.Authors)
	}
	if len(res.Books) != 3 {
		t.Fatalf("expected 3 books, got %d: %+v", len(res.Books), res.Books)
	}
	var sawBookOne, sawLoose, sawStandalone bool
	for _, b := range res.Books {
		switch b.RelPath {
		case "AuthorOne/BookOne":
			sawBookOne = true
			if b.Author != "AuthorOne" || b.UnitType != "dir" {
				t.Errorf("BookOne misclassified: %+v", b)
			}
			if b.Fingerprint == nil || b.Fingerprint.Algo != "sha256" {
				t.Errorf("BookOne missing fingerprint: %+v", b)
			}
			if len(b.CoverCandidates) != 1 || b.CoverCandidates[0] != "AuthorOne/BookOne/cover.jpg" {
				t.Errorf("BookOne cover candidates wrong: %v", b.CoverCandidates)
			}
		case "LooseBook":
			sawLoose = true
			if b.Author != "" || b.UnitType != "dir" {
				t.Errorf("LooseBook misclassified: %+v", b)
			}
		case "standalone.mp3":
			sawStandalone = true
			if b.UnitType != "file" || b.Book != "standalone" {
				t.Errorf("standalone misclassified: %+v", b)
			}
		}
	}
	if !sawBookOne || !sawLoose || !sawStandalone {
		t.Fatalf("missing expected books: %+v", res.Books)
	}

	foundSkip := false
	for _, sk := range res.Skipped {
		if sk.RelPath == "readme.txt" && sk.Reason == "unsupported_file_ext" {
			foundSkip = true
		}
	}
	if !foundSkip {
		t.Errorf("expected readme.txt to be skipped: %+v", res.Skipped)
	}
}

func TestFastIndexSignatureStableWhenUnchanged(t *testing.T) {
	svc, fs := newTestService(t)
	seedInbox(t, fs)
	ctx := context.Background()

	first, err := svc.FastIndex(ctx, jail.RootInbox, ".")
	if err != nil {
		t.Fatalf("first FastIndex failed: %v", err)
	}
	if !first.Changed {
		t.Fatalf("expected first FastIndex call to report changed=true")
	}
	if first.DeepScanState.State != DeepPending {
		t.Fatalf("expected deep scan state pending after first index, got %s", first.DeepScanState.State)
	}

	second, err := svc.FastIndex(ctx, jail.RootInbox, ".")
	if err != nil {
		t.Fatalf("second FastIndex failed: %v", err)
	}
	if second.Changed {
		t.Fatalf("expected second FastIndex call to report changed=false")
	}
	if second.Signature != first.Signature {
		t.Fatalf("signature should be stable across unchanged calls: %s vs %s", first.Signature, second.Signature)
	}
	if len(second.Authors) != 1 || len(second.Books) != 3 {
		t.Fatalf("unexpected cached index shape: %+v", second)
	}
}

func TestDeepEnrichmentPopulatesCoverCandidatesAndCompletes(t *testing.T) {
	svc, fs := newTestService(t)
	seedInbox(t, fs)
	ctx := context.Background()

	if _, err := svc.FastIndex(ctx, jail.RootInbox, "."); err != nil {
		t.Fatalf("FastIndex failed: %v", err)
	}
	if err := svc.RunDeepEnrichmentIfNeeded(ctx, jail.RootInbox, "."); err != nil {
		t.Fatalf("RunDeepEnrichmentIfNeeded failed: %v", err)
	}

	state := svc.GetDeepScanState(ctx)
	if state.State != DeepDone {
		t.Fatalf("expected deep scan state done, got %s (err=%v)", state.State, state.LastError)
	}
	if state.ScannedItems != state.TotalItems || state.TotalItems != 3 {
		t.Fatalf("expected all 3 books scanned, got %d/%d", state.ScannedItems, state.TotalItems)
	}

	idx, err := svc.FastIndex(ctx, jail.RootInbox, ".")
	if err != nil {
		t.Fatalf("FastIndex after enrichment failed: %v", err)
	}
	var found bool
	for _, b := range idx.Books {
		if b.RelPath == "AuthorOne/BookOne" {
			found = true
			if len(b.CoverCandidates) != 1 {
				t.Errorf("expected cover candidate after enrichment, got %v", b.CoverCandidates)
			}
			if b.Fingerprint == nil || b.Fingerprint.Strength != "basic" {
				t.Errorf("expected stat-based fingerprint after enrichment, got %+v", b.Fingerprint)
			}
		}
	}
	if !found {
		t.Fatalf("BookOne missing from enriched index: %+v", idx.Books)
	}

	// A second run with nothing changed should be a no-op that leaves the
	// state machine done rather than flipping back to running.
	if err := svc.RunDeepEnrichmentIfNeeded(ctx, jail.RootInbox, "."); err != nil {
		t.Fatalf("second RunDeepEnrichmentIfNeeded failed: %v", err)
	}
	if got := svc.GetDeepScanState(ctx).State; got != DeepDone {
		t.Fatalf("expected state to remain done, got %s", got)
	}
}
