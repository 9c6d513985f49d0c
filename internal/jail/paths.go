package jail

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// NormalizeRelPath validates and normalizes a caller-supplied relative path.
//
// Rules: must be relative (no leading slash), no ".." segments, backslashes
// are folded to forward slashes for cross-client consistency. "." and ""
// both denote the root itself.
func NormalizeRelPath(relPath string) (string, error) {
	p := strings.ReplaceAll(relPath, "\\", "/")

	if strings.HasPrefix(p, "/") {
		return "", wizarderr.Validation("absolute paths are not allowed", wizarderr.Detail{
			Path: "$.rel_path", Reason: "invalid_path",
		})
	}

	clean := path.Clean(p)
	if clean == "" {
		clean = "."
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", wizarderr.Validation("parent path segments ('..') are not allowed", wizarderr.Detail{
				Path: "$.rel_path", Reason: "invalid_path",
			})
		}
	}
	return clean, nil
}

// Resolve resolves rel under rootDir, guaranteeing the result stays inside
// rootDir. It returns ESCAPES_ROOT-flavored VALIDATION_ERROR otherwise.
func Resolve(rootDir, relPath string) (string, error) {
	rel, err := NormalizeRelPath(relPath)
	if err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return "", wizarderr.Internal("cannot resolve root directory: " + err.Error())
	}

	var absPath string
	if rel == "." {
		absPath = absRoot
	} else {
		absPath = filepath.Join(absRoot, filepath.FromSlash(rel))
	}

	absPathClean := filepath.Clean(absPath)
	absRootClean := filepath.Clean(absRoot)
	if absPathClean != absRootClean &&
		!strings.HasPrefix(absPathClean, absRootClean+string(filepath.Separator)) {
		return "", wizarderr.Validation("path escapes configured root", wizarderr.Detail{
			Path: "$.rel_path", Reason: "escapes_root",
		})
	}

	return absPathClean, nil
}
