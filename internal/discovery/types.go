// Package discovery implements Component G: the read-only, two-pass
// discovery and preflight pipeline that turns a source directory under an
// inbox-shaped root into the book units a session's EffectiveModel selects
// from.
//
// Pass one, FastIndex, is bounded to two directory levels and touches no
// file contents: it is cheap enough to run on every wizard start screen
// render. Pass two, deep enrichment, is delta-driven off the fast index's
// signature and may read file metadata recursively, but never file bytes
// beyond a checksum when the caller asks for the stronger Run preflight.
package discovery

var audioExt = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".flac": true,
	".wav": true, ".ogg": true, ".opus": true,
}

var archiveExt = map[string]bool{".zip": true, ".rar": true, ".7z": true}

var imgExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Root item classifications, per spec.md §4.G.
const (
	ItemAuthorDir    = "author_dir"
	ItemBookDir      = "book_dir"
	ItemAudioFile    = "audio_file"
	ItemContainerZip = "container_zip"
	ItemContainerRar = "container_rar"
	ItemOtherFile    = "other_file"
)

// Deep-enrichment cache states, per spec.md §4.G.
const (
	DeepIdle    = "idle"
	DeepPending = "pending"
	DeepRunning = "running"
	DeepDone    = "done"
	DeepFailed  = "failed"
)

// IndexItem is one root-level entry surfaced by FastIndex, before any
// author/book grouping.
type IndexItem struct {
	RelPath string `json:"rel_path"`
	Type    string `json:"item_type"`
	Size    *int64 `json:"size,omitempty"`
	MTime   *int64 `json:"mtime,omitempty"`
}

// BookFingerprint identifies the contents of a book unit. Strength is
// "basic" for both kinds this package computes: the stat-based one
// (rel_path, size, mtime) that deep enrichment caches, and the
// content-checksum one that Run and FingerprintDirChecksum /
// FingerprintFileChecksum return; the field does not tell them apart.
type BookFingerprint struct {
	Algo     string `json:"algo"`
	Value    string `json:"value"`
	Strength string `json:"strength"`
}

// BookUnit is one discovered book: either a directory (dir) or a single
// loose audio/archive file at the root (file). FastIndex returns units
// with enrichment fields populated from whatever the deep-enrichment cache
// currently holds for the unit's book_ref; Run returns fully enriched
// units computed synchronously.
type BookUnit struct {
	BookRef          string            `json:"book_ref"`
	UnitType         string            `json:"unit_type"`
	Author           string            `json:"author"`
	Book             string            `json:"book"`
	RelPath          string            `json:"rel_path"`
	SuggestedAuthor  *string           `json:"suggested_author,omitempty"`
	SuggestedTitle   string            `json:"suggested_title,omitempty"`
	CoverCandidates  []string          `json:"cover_candidates,omitempty"`
	RenamePreview    map[string]string `json:"rename_preview,omitempty"`
	Fingerprint      *BookFingerprint  `json:"fingerprint,omitempty"`
	Id3MajorityTitle *string           `json:"id3_majority_title,omitempty"`
}

// SkippedEntry records a root entry that Run classified but did not turn
// into a book unit, with the reason it was set aside.
type SkippedEntry struct {
	RelPath   string `json:"rel_path"`
	EntryType string `json:"entry_type"`
	Reason    string `json:"reason"`
}

// DeepScanState is the current state of the background deep-enrichment
// cycle for the most recently indexed source.
type DeepScanState struct {
	State        string  `json:"state"`
	Signature    *string `json:"signature,omitempty"`
	LastScanTS   *int64  `json:"last_scan_ts,omitempty"`
	ScannedItems int     `json:"scanned_items"`
	TotalItems   int     `json:"total_items"`
	LastError    *string `json:"last_error,omitempty"`
}

// IndexResult is FastIndex's return value.
type IndexResult struct {
	SourceRootRelPath string          `json:"source_root_rel_path"`
	Signature         string          `json:"signature"`
	Changed           bool            `json:"changed"`
	LastScanTS        *int64          `json:"last_scan_ts,omitempty"`
	DeepScanState     DeepScanState   `json:"deep_scan_state"`
	RootItems         []IndexItem     `json:"root_items"`
	Authors           []string        `json:"authors"`
	Books             []BookUnit      `json:"books"`
}

// PreflightResult is Run's return value: a full, synchronous, checksum-
// backed preflight of a source directory.
type PreflightResult struct {
	SourceRootRelPath string         `json:"source_root_rel_path"`
	Authors           []string       `json:"authors"`
	Books             []BookUnit     `json:"books"`
	Skipped           []SkippedEntry `json:"skipped"`
}
