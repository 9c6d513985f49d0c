package discovery

import (
	"context"
	"sort"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// indexedBook is the bare author/book/rel_path tuple fast_index derives,
// before any enrichment has been layered on via the cache.
type indexedBook struct {
	bookRef  string
	unitType string
	author   string
	book     string
	relPath  string
}

// FastIndex runs the bounded two-level scan described in spec.md §4.G,
// consulting and updating the enrichment cache. It never reads file
// contents and never recurses past the first child level.
func (s *Service) FastIndex(ctx context.Context, root jail.RootName, sourceRootRelPath string) (result IndexResult, err error) {
	inputs := map[string]any{"root": string(root), "source_root_rel_path": sourceRootRelPath}
	obs, ctx := s.observe(ctx, "import.fast_index", inputs)
	defer obs.End(&err)

	cache := s.loadCache(ctx)

	rootItems, books, authors, signature, err := s.buildFastIndex(ctx, root, sourceRootRelPath)
	if err != nil {
		return IndexResult{}, err
	}

	changed := signature != cache.Signature

	if !changed && cache.SourceRootRelPath != "" {
		res := s.indexFromCache(cache, false)
		obs.Summary()["authors_n"] = len(res.Authors)
		obs.Summary()["books_n"] = len(res.Books)
		obs.Summary()["root_items_n"] = len(res.RootItems)
		obs.Summary()["changed"] = false
		return res, nil
	}

	cache.SourceRootRelPath = sourceRootRelPath
	cache.Signature = signature
	cache.RootItems = rootItems
	cache.Authors = authors
	ts := nowUnixMilli()
	cache.LastScanTS = &ts

	deep := cache.Deep
	if deep.State == "" {
		deep.State = DeepIdle
	}
	lastEnrichedSig := ""
	if deep.Signature != nil {
		lastEnrichedSig = *deep.Signature
	}
	if signature != lastEnrichedSig {
		deep.State = DeepPending
	}
	cache.Deep = deep

	// Reconcile entries against the freshly discovered book set: an entry
	// for a book that no longer exists is dropped so stale enrichment
	// never leaks into a future index_from_cache call.
	live := map[string]bool{}
	for _, b := range books {
		live[b.bookRef] = true
		entry, ok := cache.Entries[b.bookRef]
		if !ok {
			entry = preflightCacheEntry{}
		}
		entry.UnitType = b.unitType
		entry.Author = b.author
		entry.Book = b.book
		entry.RelPath = b.relPath
		cache.Entries[b.bookRef] = entry
	}
	for ref := range cache.Entries {
		if !live[ref] {
			delete(cache.Entries, ref)
		}
	}

	s.saveCache(ctx, cache)

	res := s.indexFromCache(cache, changed)
	obs.Summary()["changed"] = changed
	obs.Summary()["authors_n"] = len(res.Authors)
	obs.Summary()["books_n"] = len(res.Books)
	obs.Summary()["root_items_n"] = len(res.RootItems)
	return res, nil
}

func (s *Service) buildFastIndex(ctx context.Context, root jail.RootName, sourceRootRelPath string) ([]IndexItem, []indexedBook, []string, string, error) {
	rootEntries, err := s.fs.List(ctx, root, sourceRootRelPath, false)
	if err != nil {
		return nil, nil, nil, "", err
	}
	sort.Slice(rootEntries, func(i, j int) bool { return rootEntries[i].RelPath < rootEntries[j].RelPath })

	var sigItems []sigEntry
	var rootItems []IndexItem
	var books []indexedBook
	authorsSet := map[string]bool{}

	sigAdd := func(relPath string, isDir bool, size, mtime *int64) {
		var sz, mt int64
		if size != nil {
			sz = *size
		}
		if mtime != nil {
			mt = *mtime
		}
		sigItems = append(sigItems, sigEntry{RelPath: relPath, IsDir: isDir, Size: sz, MTime: mt})
	}

	for _, entry := range rootEntries {
		name := baseName(entry.RelPath)
		if name == "" || name == "." || name == ".." {
			continue
		}
		sigAdd(entry.RelPath, entry.IsDir, entry.Size, entry.MTime)

		if entry.IsDir {
			dirRel := entry.RelPath
			childEntries, err := s.fs.List(ctx, root, dirRel, false)
			if err != nil {
				return nil, nil, nil, "", err
			}
			sort.Slice(childEntries, func(i, j int) bool { return childEntries[i].RelPath < childEntries[j].RelPath })

			var childDirs []string
			for _, c := range childEntries {
				cn := baseName(c.RelPath)
				if cn == "" || cn == "." || cn == ".." {
					continue
				}
				sigAdd(c.RelPath, c.IsDir, c.Size, c.MTime)
				if c.IsDir {
					childDirs = append(childDirs, cn)
				}
			}
			sort.Strings(childDirs)

			if len(childDirs) > 0 {
				rootItems = append(rootItems, IndexItem{RelPath: dirRel, Type: ItemAuthorDir, Size: entry.Size, MTime: entry.MTime})
				author := name
				authorsSet[author] = true
				for _, book := range childDirs {
					bookRel := joinRel(dirRel, book)
					books = append(books, indexedBook{
						bookRef:  bookRef(sourceRootRelPath, bookRel),
						unitType: "dir",
						author:   author,
						book:     book,
						relPath:  bookRel,
					})
				}
			} else {
				rootItems = append(rootItems, IndexItem{RelPath: dirRel, Type: ItemBookDir, Size: entry.Size, MTime: entry.MTime})
				books = append(books, indexedBook{
					bookRef:  bookRef(sourceRootRelPath, dirRel),
					unitType: "dir",
					author:   "",
					book:     name,
					relPath:  dirRel,
				})
			}
		} else {
			ext := extOf(entry.RelPath)
			itemType := ItemOtherFile
			switch {
			case audioExt[ext]:
				itemType = ItemAudioFile
				books = append(books, indexedBook{
					bookRef:  bookRef(sourceRootRelPath, entry.RelPath),
					unitType: "file",
					author:   "",
					book:     stemOf(entry.RelPath),
					relPath:  entry.RelPath,
				})
			case ext == ".zip":
				itemType = ItemContainerZip
			case ext == ".rar":
				itemType = ItemContainerRar
			}
			rootItems = append(rootItems, IndexItem{RelPath: entry.RelPath, Type: itemType, Size: entry.Size, MTime: entry.MTime})
		}
	}

	authors := make([]string, 0, len(authorsSet))
	for a := range authorsSet {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	sort.Slice(rootItems, func(i, j int) bool { return rootItems[i].RelPath < rootItems[j].RelPath })
	sort.Slice(books, func(i, j int) bool {
		if books[i].author != books[j].author {
			return books[i].author < books[j].author
		}
		if books[i].book != books[j].book {
			return books[i].book < books[j].book
		}
		return books[i].relPath < books[j].relPath
	})
	sort.Slice(sigItems, func(i, j int) bool { return sigItems[i].RelPath < sigItems[j].RelPath })

	return rootItems, books, authors, stableSignature(sigItems), nil
}

func (s *Service) indexFromCache(cache cacheDocument, changed bool) IndexResult {
	books := make([]BookUnit, 0, len(cache.Entries))
	for ref, e := range cache.Entries {
		books = append(books, BookUnit{
			BookRef:         ref,
			UnitType:        e.UnitType,
			Author:          e.Author,
			Book:            e.Book,
			RelPath:         e.RelPath,
			SuggestedAuthor: e.SuggestedAuthor,
			SuggestedTitle:  e.SuggestedTitle,
			CoverCandidates: e.CoverCandidates,
			RenamePreview:   e.RenamePreview,
			Fingerprint:     e.Fingerprint,
		})
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].Author != books[j].Author {
			return books[i].Author < books[j].Author
		}
		if books[i].Book != books[j].Book {
			return books[i].Book < books[j].Book
		}
		return books[i].RelPath < books[j].RelPath
	})

	return IndexResult{
		SourceRootRelPath: cache.SourceRootRelPath,
		Signature:         cache.Signature,
		Changed:           changed,
		LastScanTS:        cache.LastScanTS,
		DeepScanState:     cache.Deep,
		RootItems:         cache.RootItems,
		Authors:           cache.Authors,
		Books:             books,
	}
}
