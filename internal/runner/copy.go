package runner

import (
	"context"
	"io"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// copyTree copies every file under srcRoot/srcRel into dstRoot/dstRel,
// preserving the subtree's relative structure, and returns the number of
// files copied. Copying goes through OpenRead/OpenWrite rather than
// jail.FileService.Copy because Copy only operates within a single root,
// and staging always moves bytes from a source root to the Stage root.
func copyTree(ctx context.Context, fs *jail.FileService, srcRoot jail.RootName, srcRel string, dstRoot jail.RootName, dstRel string) (copied int, err error) {
	entries, err := fs.List(ctx, srcRoot, srcRel, true)
	if err != nil {
		return 0, err
	}
	files := sortedFiles(entries)
	trimmedSrc := strings.TrimSuffix(srcRel, "/")
	trimmedDst := strings.TrimSuffix(dstRel, "/")

	for _, rel := range files {
		suffix := strings.TrimPrefix(strings.TrimPrefix(rel, trimmedSrc), "/")
		dstFileRel := trimmedDst
		if suffix != "" {
			dstFileRel = trimmedDst + "/" + suffix
		}
		if err := copyFile(ctx, fs, srcRoot, rel, dstRoot, dstFileRel); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// copyFile copies a single file across roots.
func copyFile(ctx context.Context, fs *jail.FileService, srcRoot jail.RootName, srcRel string, dstRoot jail.RootName, dstRel string) error {
	r, err := fs.OpenRead(ctx, srcRoot, srcRel)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := fs.OpenWrite(ctx, dstRoot, dstRel, true, true)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = io.Copy(w, r)
	return err
}
