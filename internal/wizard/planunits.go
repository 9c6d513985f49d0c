package wizard

import (
	"sort"

	"github.com/michalholes/audiomason2-sub000/internal/bootstrap"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
)

// bookPair is an (author_key, book_key) grouping derived from a source
// tree's directory structure, the unit both selection items and plan
// rows are keyed on.
type bookPair struct {
	authorKey string
	bookKey   string
}

// deriveBookPairs groups a preflight's directory book units into
// (author_key, book_key) pairs: a book nested under an author directory
// pairs as (author, book); a loose top-level book directory pairs with
// itself; if no directory units exist at all, a single "(root)" pseudo-
// unit stands in. This mirrors the original's two independent, near-
// identical implementations of the same grouping (one feeding session
// selection items, one feeding plan computation) collapsed into the one
// function both now share.
//
// A source mixing authored and loose top-level book directories only
// ever selects the authored ones: once any (author, book) pair exists,
// the loose-directory fallback never runs. This was the original's own
// book-derivation behavior (derive_book_units), not something
// introduced here.
func deriveBookPairs(books []discovery.BookUnit) []bookPair {
	seen := map[bookPair]bool{}
	for _, b := range books {
		if b.UnitType != "dir" || b.Author == "" {
			continue
		}
		seen[bookPair{b.Author, b.Book}] = true
	}
	if len(seen) == 0 {
		for _, b := range books {
			if b.UnitType != "dir" {
				continue
			}
			seen[bookPair{b.Book, b.Book}] = true
		}
	}
	if len(seen) == 0 {
		seen[bookPair{"(root)", "(root)"}] = true
	}

	pairs := make([]bookPair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].authorKey != pairs[j].authorKey {
			return pairs[i].authorKey < pairs[j].authorKey
		}
		return pairs[i].bookKey < pairs[j].bookKey
	})
	return pairs
}

func pairLabel(p bookPair) string {
	if p.authorKey == p.bookKey {
		return p.authorKey
	}
	return p.authorKey + " / " + p.bookKey
}

// deriveSelectionItems builds the select_authors/select_books field
// items from a session's frozen discovery snapshot.
func deriveSelectionItems(disc discovery.PreflightResult) ([]bootstrap.SelectItem, []bootstrap.SelectItem) {
	pairs := deriveBookPairs(disc.Books)

	authorsSeen := map[string]bootstrap.SelectItem{}
	var books []bootstrap.SelectItem
	for _, p := range pairs {
		authorID := fingerprint.AuthorID(p.authorKey)
		if _, ok := authorsSeen[authorID]; !ok {
			authorsSeen[authorID] = bootstrap.SelectItem{ItemID: authorID, Label: toASCII(p.authorKey)}
		}
		bookID := fingerprint.BookID(p.authorKey, p.bookKey)
		books = append(books, bootstrap.SelectItem{ItemID: bookID, Label: toASCII(pairLabel(p))})
	}

	authors := make([]bootstrap.SelectItem, 0, len(authorsSeen))
	for _, a := range authorsSeen {
		authors = append(authors, a)
	}
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].Label != authors[j].Label {
			return authors[i].Label < authors[j].Label
		}
		return authors[i].ItemID < authors[j].ItemID
	})
	sort.Slice(books, func(i, j int) bool {
		if books[i].Label != books[j].Label {
			return books[i].Label < books[j].Label
		}
		return books[i].ItemID < books[j].ItemID
	})
	return authors, books
}

// injectSelectionItems sets the items list of every multi_select_indexed
// field on select_authors/select_books to the discovery-derived set.
func injectSelectionItems(em bootstrap.EffectiveModel, authors, books []bootstrap.SelectItem) bootstrap.EffectiveModel {
	for i, step := range em.Steps {
		if step.StepID != "select_authors" && step.StepID != "select_books" {
			continue
		}
		for j, f := range step.Fields {
			if f.Type != "multi_select_indexed" {
				continue
			}
			if step.StepID == "select_authors" {
				em.Steps[i].Fields[j].Items = authors
			} else {
				em.Steps[i].Fields[j].Items = books
			}
		}
	}
	return em
}
