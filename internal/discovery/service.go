package discovery

import (
	"context"
	"sort"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// Service is the read-only preflight detector for one FileService. All
// state it needs across calls (the fast-index signature, the deep-scan
// state machine, per-book enrichment) lives in the cache document under
// the Jobs root; Service itself is stateless and safe to construct fresh
// per request.
type Service struct {
	fs  *jail.FileService
	bus *diagnostics.Bus
}

// New constructs a Service. bus may be nil.
func New(fs *jail.FileService, bus *diagnostics.Bus) *Service {
	return &Service{fs: fs, bus: bus}
}

func (s *Service) observe(ctx context.Context, op string, base map[string]any) (*diagnostics.Observation, context.Context) {
	return s.bus.Observe(ctx, "import.preflight", op, base)
}

// Run performs a full, synchronous, checksum-backed preflight of
// sourceRootRelPath under root: two-level author/book classification plus
// a content-checksum BookFingerprint per unit. This is the path
// a session's create_session uses to snapshot discovery.json, since that
// snapshot is immutable once written and must not be invalidated by a
// later stat-only fingerprint mismatch.
func (s *Service) Run(ctx context.Context, root jail.RootName, sourceRootRelPath string) (result PreflightResult, err error) {
	inputs := map[string]any{"root": string(root), "source_root_rel_path": sourceRootRelPath}
	obs, ctx := s.observe(ctx, "import.preflight", inputs)
	defer obs.End(&err)

	rootEntries, err := s.fs.List(ctx, root, sourceRootRelPath, false)
	if err != nil {
		return PreflightResult{}, err
	}

	var authorsSet = map[string]bool{}
	var books []BookUnit
	var skipped []SkippedEntry

	sort.Slice(rootEntries, func(i, j int) bool { return rootEntries[i].RelPath < rootEntries[j].RelPath })
	for _, entry := range rootEntries {
		name := baseName(entry.RelPath)
		if name == "" || name == "." || name == ".." {
			continue
		}

		if entry.IsDir {
			dirRel := entry.RelPath
			childEntries, err := s.fs.List(ctx, root, dirRel, false)
			if err != nil {
				return PreflightResult{}, err
			}
			var childDirs []string
			for _, c := range childEntries {
				cn := baseName(c.RelPath)
				if c.IsDir && cn != "" && cn != "." && cn != ".." {
					childDirs = append(childDirs, cn)
				}
			}
			sort.Strings(childDirs)

			if len(childDirs) > 0 {
				author := name
				authorsSet[author] = true
				for _, c := range childEntries {
					if !c.IsDir {
						skipped = append(skipped, SkippedEntry{
							RelPath:   c.RelPath,
							EntryType: "file",
							Reason:    "unexpected_file_in_author_dir",
						})
					}
				}
				for _, book := range childDirs {
					bookRelPath := joinRel(dirRel, book)
					bu, err := s.preflightDir(ctx, root, sourceRootRelPath, author, book, bookRelPath)
					if err != nil {
						return PreflightResult{}, err
					}
					books = append(books, bu)
				}
			} else {
				bu, err := s.preflightDir(ctx, root, sourceRootRelPath, "", name, dirRel)
				if err != nil {
					return PreflightResult{}, err
				}
				books = append(books, bu)
			}
		} else {
			ext := extOf(entry.RelPath)
			if archiveExt[ext] || audioExt[ext] {
				bu, err := s.preflightFile(ctx, root, sourceRootRelPath, "", stemOf(entry.RelPath), entry.RelPath)
				if err != nil {
					return PreflightResult{}, err
				}
				books = append(books, bu)
			} else {
				skipped = append(skipped, SkippedEntry{
					RelPath:   entry.RelPath,
					EntryType: "file",
					Reason:    "unsupported_file_ext",
				})
			}
		}
	}

	authors := make([]string, 0, len(authorsSet))
	for a := range authorsSet {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	sort.Slice(books, func(i, j int) bool {
		if books[i].Author != books[j].Author {
			return books[i].Author < books[j].Author
		}
		if books[i].Book != books[j].Book {
			return books[i].Book < books[j].Book
		}
		return books[i].RelPath < books[j].RelPath
	})
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].RelPath < skipped[j].RelPath })

	obs.Summary()["authors_n"] = len(authors)
	obs.Summary()["books_n"] = len(books)
	obs.Summary()["skipped_n"] = len(skipped)

	return PreflightResult{
		SourceRootRelPath: sourceRootRelPath,
		Authors:           authors,
		Books:             books,
		Skipped:           skipped,
	}, nil
}

func (s *Service) preflightDir(ctx context.Context, root jail.RootName, sourceRootRelPath, author, book, bookRel string) (BookUnit, error) {
	covers, err := s.findCoverCandidates(ctx, root, bookRel)
	if err != nil {
		return BookUnit{}, err
	}
	fp, err := s.fingerprintDirChecksum(ctx, root, bookRel)
	if err != nil {
		return BookUnit{}, err
	}
	var suggestedAuthor *string
	if author != "" {
		suggestedAuthor = &author
	}
	return BookUnit{
		BookRef:         bookRef(sourceRootRelPath, bookRel),
		UnitType:        "dir",
		Author:          author,
		Book:            book,
		RelPath:         bookRel,
		SuggestedAuthor: suggestedAuthor,
		SuggestedTitle:  book,
		CoverCandidates: covers,
		RenamePreview:   map[string]string{bookRel: bookRel},
		Fingerprint:     &fp,
	}, nil
}

func (s *Service) preflightFile(ctx context.Context, root jail.RootName, sourceRootRelPath, author, book, fileRel string) (BookUnit, error) {
	fp, err := s.fingerprintFileChecksum(ctx, root, fileRel)
	if err != nil {
		return BookUnit{}, err
	}
	var suggestedAuthor *string
	if author != "" {
		suggestedAuthor = &author
	}
	return BookUnit{
		BookRef:         bookRef(sourceRootRelPath, fileRel),
		UnitType:        "file",
		Author:          author,
		Book:            book,
		RelPath:         fileRel,
		SuggestedAuthor: suggestedAuthor,
		SuggestedTitle:  book,
		RenamePreview:   map[string]string{fileRel: fileRel},
		Fingerprint:     &fp,
	}, nil
}

func (s *Service) findCoverCandidates(ctx context.Context, root jail.RootName, bookRel string) ([]string, error) {
	entries, err := s.fs.List(ctx, root, bookRel, true)
	if err != nil {
		return nil, err
	}
	var imgs []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if imgExt[extOf(e.RelPath)] {
			imgs = append(imgs, e.RelPath)
		}
	}
	sort.Strings(imgs)
	return imgs, nil
}

// FingerprintDirChecksum computes a directory book unit's content
// fingerprint the same way preflight enrichment does, for callers (the
// job runner's identity check) that need it against a unit's current,
// possibly-post-copy filesystem state rather than a cached snapshot.
func (s *Service) FingerprintDirChecksum(ctx context.Context, root jail.RootName, bookRel string) (BookFingerprint, error) {
	return s.fingerprintDirChecksum(ctx, root, bookRel)
}

// FingerprintFileChecksum is FingerprintDirChecksum's single-file
// counterpart.
func (s *Service) FingerprintFileChecksum(ctx context.Context, root jail.RootName, fileRel string) (BookFingerprint, error) {
	return s.fingerprintFileChecksum(ctx, root, fileRel)
}

func (s *Service) fingerprintDirChecksum(ctx context.Context, root jail.RootName, bookRel string) (BookFingerprint, error) {
	entries, err := s.fs.List(ctx, root, bookRel, true)
	if err != nil {
		return BookFingerprint{}, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir {
			files = append(files, e.RelPath)
		}
	}
	sort.Strings(files)

	h := sha256New()
	for _, rel := range files {
		ext := extOf(rel)
		if !audioExt[ext] && !imgExt[ext] {
			continue
		}
		chk, err := s.fs.Checksum(ctx, root, rel)
		if err != nil {
			return BookFingerprint{}, err
		}
		h.Write([]byte(rel))
		h.Write([]byte{'\n'})
		h.Write([]byte(chk))
		h.Write([]byte{'\n'})
	}
	return BookFingerprint{Algo: "sha256", Value: h.sum(), Strength: "basic"}, nil
}

func (s *Service) fingerprintFileChecksum(ctx context.Context, root jail.RootName, fileRel string) (BookFingerprint, error) {
	chk, err := s.fs.Checksum(ctx, root, fileRel)
	if err != nil {
		return BookFingerprint{}, err
	}
	h := sha256New()
	h.Write([]byte(fileRel))
	h.Write([]byte{'\n'})
	h.Write([]byte(chk))
	h.Write([]byte{'\n'})
	return BookFingerprint{Algo: "sha256", Value: h.sum(), Strength: "basic"}, nil
}
