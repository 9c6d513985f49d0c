package runner

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
)

// guardedDeleteSource removes a book's source bytes after a successful
// stage copy, but only once it has re-derived the source's identity key
// and confirmed it still matches the key computed before copying began
// -- closing the TOCTOU window between "copy succeeded" and "delete
// source" where an external process could have modified the source.
// A mismatch or a failed re-check leaves the source untouched and
// records why, rather than failing the job: the book was already
// staged successfully, so partial success is preferable to losing data.
func (e *Engine) guardedDeleteSource(ctx context.Context, sourceRoot jail.RootName, bookRelPath, unitType, expectedKey string, opts *jobstore.TransitionOpts) {
	currentKey, err := e.identityKey(ctx, sourceRoot, bookRelPath, unitType)
	if err != nil {
		opts.Warnings = append(opts.Warnings, "delete_source_fingerprint_failed: "+err.Error())
		return
	}
	if currentKey != expectedKey {
		opts.Warnings = append(opts.Warnings, "delete_source_guard_mismatch: expected="+expectedKey+" got="+currentKey)
		return
	}

	var derr error
	if unitType == "dir" {
		derr = e.fs.Rmtree(ctx, sourceRoot, bookRelPath)
	} else {
		derr = e.fs.DeleteFile(ctx, sourceRoot, bookRelPath)
	}
	if derr != nil {
		opts.Warnings = append(opts.Warnings, "delete_source_failed: "+derr.Error())
		return
	}
	opts.Warnings = append(opts.Warnings, "deleted_source: "+bookRelPath)
}
