package discovery

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
)

type sigEntry struct {
	RelPath string `json:"rel_path"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	MTime   int64  `json:"mtime"`
}

// stableSignature canonicalizes items and hashes the result, giving the
// same signature across processes regardless of map iteration order,
// grounded on the teacher's canonical-JSON-then-hash fingerprinting idiom
// (internal/fingerprint), which mirrors the original's
// json.dumps(sort_keys=True) + sha256 pairing.
func stableSignature(items []sigEntry) string {
	data, err := fingerprint.CanonicalBytes(items)
	if err != nil {
		// items is always a concrete, finite-float-free slice here; a
		// canonicalization failure would be a programming error.
		return ""
	}
	return fingerprint.SHA256Hex(data)
}

// bookRef derives a stable 24-hex identifier for a book unit, scoped to
// the source root and the unit's relative path.
func bookRef(sourceRootRelPath, relPath string) string {
	h := sha256.New()
	h.Write([]byte(sourceRootRelPath))
	h.Write([]byte{'\n'})
	h.Write([]byte(relPath))
	h.Write([]byte{'\n'})
	return "book_" + hex.EncodeToString(h.Sum(nil))[:24]
}
