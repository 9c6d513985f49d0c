package discovery

import (
	"context"
	"sort"
	"strconv"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// GetDeepScanState returns the deep-enrichment cache's current state
// machine position, without triggering a scan.
func (s *Service) GetDeepScanState(ctx context.Context) DeepScanState {
	return s.loadCache(ctx).Deep
}

// RunDeepEnrichmentIfNeeded advances the deep-enrichment state machine
// (idle -> pending -> running -> {done, failed}) one cycle if the fast
// index's signature has changed since the last completed enrichment.
// Concurrent invocations are excluded by the running state itself: it is
// persisted before the scan starts, so a second caller observing
// state=running returns immediately.
func (s *Service) RunDeepEnrichmentIfNeeded(ctx context.Context, root jail.RootName, sourceRootRelPath string) (err error) {
	cache := s.loadCache(ctx)
	if cache.SourceRootRelPath == "" {
		if _, ferr := s.FastIndex(ctx, root, sourceRootRelPath); ferr != nil {
			return ferr
		}
		cache = s.loadCache(ctx)
		if cache.SourceRootRelPath == "" {
			return nil
		}
	}

	signature := cache.Signature
	deep := cache.Deep
	lastEnrichedSig := ""
	if deep.Signature != nil {
		lastEnrichedSig = *deep.Signature
	}

	if signature == "" || signature == lastEnrichedSig {
		if deep.State == DeepPending || deep.State == DeepFailed {
			deep.State = DeepDone
			cache.Deep = deep
			s.saveCache(ctx, cache)
		}
		return nil
	}
	if deep.State == DeepRunning {
		return nil
	}

	obs, ctx := s.observe(ctx, "import.deep_enrichment", map[string]any{
		"root": string(root), "source_root_rel_path": sourceRootRelPath,
	})
	defer obs.End(&err)

	total := len(cache.Entries)
	deep.State = DeepRunning
	deep.Signature = nil
	deep.ScannedItems = 0
	deep.TotalItems = total
	deep.LastError = nil
	ts := nowUnixMilli()
	deep.LastScanTS = &ts
	cache.Deep = deep
	s.saveCache(ctx, cache)

	refs := make([]string, 0, len(cache.Entries))
	for ref := range cache.Entries {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	scanned := 0
	for _, ref := range refs {
		entry := cache.Entries[ref]
		if entry.UnitType != "dir" && entry.UnitType != "file" {
			continue
		}

		bookSig, sigErr := s.bookSignature(ctx, root, entry.RelPath, entry.UnitType)
		if sigErr != nil {
			deep.State = DeepFailed
			msg := sigErr.Error()
			deep.LastError = &msg
			cache.Deep = deep
			s.saveCache(ctx, cache)
			return sigErr
		}

		if bookSig != "" && bookSig == entry.Sig {
			scanned++
			deep.ScannedItems = scanned
			cache.Deep = deep
			s.saveCache(ctx, cache)
			continue
		}

		enriched, enrichErr := s.enrichBook(ctx, root, entry.RelPath, entry.UnitType)
		if enrichErr != nil {
			deep.State = DeepFailed
			msg := enrichErr.Error()
			deep.LastError = &msg
			cache.Deep = deep
			s.saveCache(ctx, cache)
			return enrichErr
		}
		enriched.UnitType = entry.UnitType
		enriched.Author = entry.Author
		enriched.Book = entry.Book
		enriched.RelPath = entry.RelPath
		enriched.Sig = bookSig
		cache.Entries[ref] = enriched

		scanned++
		deep.ScannedItems = scanned
		cache.Deep = deep
		s.saveCache(ctx, cache)
	}

	deep.State = DeepDone
	deep.Signature = &signature
	ts2 := nowUnixMilli()
	deep.LastScanTS = &ts2
	cache.Deep = deep
	s.saveCache(ctx, cache)

	return nil
}

// bookSignature computes the per-unit invalidation signature: for a file
// unit, its own stat; for a dir unit, the sorted (rel_path, size, mtime)
// of every audio/image member found by a recursive listing.
func (s *Service) bookSignature(ctx context.Context, root jail.RootName, relPath, unitType string) (string, error) {
	if unitType == "file" {
		st, err := s.fs.Stat(ctx, root, relPath)
		if err != nil {
			return "", err
		}
		return stableSignature([]sigEntry{{RelPath: relPath, IsDir: false, Size: st.Size, MTime: st.MTime}}), nil
	}

	entries, err := s.fs.List(ctx, root, relPath, true)
	if err != nil {
		return "", err
	}
	var items []sigEntry
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		ext := extOf(e.RelPath)
		if !audioExt[ext] && !imgExt[ext] {
			continue
		}
		var sz, mt int64
		if e.Size != nil {
			sz = *e.Size
		}
		if e.MTime != nil {
			mt = *e.MTime
		}
		items = append(items, sigEntry{RelPath: e.RelPath, IsDir: false, Size: sz, MTime: mt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RelPath < items[j].RelPath })
	return stableSignature(items), nil
}

// enrichBook computes the cheap, stat-only enrichment fields for a book
// unit: suggested title, cover candidates (dir units only), and a
// stat-based BookFingerprint. It does no ID3-majority title detection:
// the cache entry has no field for it and this service never reads
// audio tags.
func (s *Service) enrichBook(ctx context.Context, root jail.RootName, relPath, unitType string) (preflightCacheEntry, error) {
	if unitType == "dir" {
		covers, err := s.findCoverCandidates(ctx, root, relPath)
		if err != nil {
			return preflightCacheEntry{}, err
		}
		fp, err := s.fingerprintStatBasedDir(ctx, root, relPath)
		if err != nil {
			return preflightCacheEntry{}, err
		}
		return preflightCacheEntry{
			SuggestedTitle:  baseName(relPath),
			CoverCandidates: covers,
			RenamePreview:   map[string]string{relPath: relPath},
			Fingerprint:     &fp,
		}, nil
	}

	fp, err := s.fingerprintStatBasedFile(ctx, root, relPath)
	if err != nil {
		return preflightCacheEntry{}, err
	}
	return preflightCacheEntry{
		SuggestedTitle: stemOf(relPath),
		RenamePreview:  map[string]string{relPath: relPath},
		Fingerprint:    &fp,
	}, nil
}

func (s *Service) fingerprintStatBasedDir(ctx context.Context, root jail.RootName, bookRel string) (BookFingerprint, error) {
	entries, err := s.fs.List(ctx, root, bookRel, true)
	if err != nil {
		return BookFingerprint{}, err
	}
	type item struct {
		rel   string
		size  int64
		mtime int64
	}
	var items []item
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		ext := extOf(e.RelPath)
		if !audioExt[ext] && !imgExt[ext] {
			continue
		}
		var sz, mt int64
		if e.Size != nil {
			sz = *e.Size
		}
		if e.MTime != nil {
			mt = *e.MTime
		}
		items = append(items, item{rel: e.RelPath, size: sz, mtime: mt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].rel < items[j].rel })

	h := sha256New()
	for _, it := range items {
		writeStatSigLine(h, it.rel, it.size, it.mtime)
	}
	return BookFingerprint{Algo: "sha256", Value: h.sum(), Strength: "basic"}, nil
}

func (s *Service) fingerprintStatBasedFile(ctx context.Context, root jail.RootName, fileRel string) (BookFingerprint, error) {
	st, err := s.fs.Stat(ctx, root, fileRel)
	if err != nil {
		return BookFingerprint{}, err
	}
	h := sha256New()
	writeStatSigLine(h, fileRel, st.Size, st.MTime)
	return BookFingerprint{Algo: "sha256", Value: h.sum(), Strength: "basic"}, nil
}

func writeStatSigLine(h runningHash, relPath string, size, mtimeUs int64) {
	h.Write([]byte(relPath))
	h.Write([]byte{'\n'})
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strconv.FormatInt(mtimeUs, 10)))
	h.Write([]byte{'\n'})
}
