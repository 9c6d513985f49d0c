package discovery

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// cacheRelPath is the enrichment cache's location, per spec.md §4.G and
// SPEC_FULL.md §4.G.1: the Jobs root, not the Wizards root, because the
// cache is scoped to a source directory rather than to any one session.
const cacheRelPath = "import_wizard/cache_v1.json"

const cacheSchemaVersion = 1

// preflightCacheEntry is one book_ref's enrichment state, keyed into
// cacheDocument.Entries. Sig is the book's own per-unit signature (rel_path
// + stat metadata over its audio/image members); it is compared against a
// freshly computed signature to decide whether re-enrichment is needed.
type preflightCacheEntry struct {
	UnitType        string            `json:"unit_type"`
	Author          string            `json:"author"`
	Book            string            `json:"book"`
	RelPath         string            `json:"rel_path"`
	Sig             string            `json:"sig"`
	SuggestedAuthor *string           `json:"suggested_author,omitempty"`
	SuggestedTitle  string            `json:"suggested_title,omitempty"`
	CoverCandidates []string          `json:"cover_candidates,omitempty"`
	RenamePreview   map[string]string `json:"rename_preview,omitempty"`
	Fingerprint     *BookFingerprint  `json:"fingerprint,omitempty"`
}

// cacheDocument is the whole contents of cache_v1.json. SPEC_FULL.md names
// {version, entries} as the required shape; the remaining fields track the
// fast-index signature and the deep-scan state machine that §4.G describes,
// without which FastIndex/RunDeepEnrichmentIfNeeded would have nowhere to
// persist cross-call state.
type cacheDocument struct {
	Version           int                             `json:"version"`
	SourceRootRelPath string                          `json:"source_root_rel_path,omitempty"`
	Signature         string                          `json:"signature,omitempty"`
	RootItems         []IndexItem                     `json:"root_items,omitempty"`
	Authors           []string                        `json:"authors,omitempty"`
	LastScanTS        *int64                          `json:"last_scan_ts,omitempty"`
	Deep              DeepScanState                   `json:"deep"`
	Entries           map[string]preflightCacheEntry  `json:"entries"`
}

func emptyCacheDocument() cacheDocument {
	return cacheDocument{
		Version: cacheSchemaVersion,
		Deep:    DeepScanState{State: DeepIdle},
		Entries: map[string]preflightCacheEntry{},
	}
}

func (s *Service) loadCache(ctx context.Context) cacheDocument {
	if !s.fs.Exists(ctx, jail.RootJobs, cacheRelPath) {
		return emptyCacheDocument()
	}
	f, err := s.fs.OpenRead(ctx, jail.RootJobs, cacheRelPath)
	if err != nil {
		return emptyCacheDocument()
	}
	defer f.Close()

	var doc cacheDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return emptyCacheDocument()
	}
	if doc.Entries == nil {
		doc.Entries = map[string]preflightCacheEntry{}
	}
	if doc.Version == 0 {
		doc.Version = cacheSchemaVersion
	}
	return doc
}

// saveCache persists doc. Per spec.md §5, the cache is updated atomically
// and readers may observe the pre- or post-update content but never a
// torn write; a save failure is swallowed the way the teacher original
// treats enrichment as best-effort (a failed cache write does not fail
// the caller's index or enrichment cycle, it just costs a future re-scan).
func (s *Service) saveCache(ctx context.Context, doc cacheDocument) {
	_ = s.fs.AtomicWriteJSON(ctx, jail.RootJobs, cacheRelPath, doc)
}
