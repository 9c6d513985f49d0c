package runner

import (
	"context"
	"strconv"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// stageOrInplace moves (stage mode) or locates in place (inplace mode) a
// selected book unit, returning the root and relative path its later
// stages (audio processing, delete-source guard) should operate against.
// Stage mode's target path for a directory unit mirrors its source
// layout under import/stage/<job_id>/; a loose file unit is staged into
// a folder named after the file stem, matching the original's handling
// of single-file books.
func (e *Engine) stageOrInplace(ctx context.Context, rec *jobstore.Record, sourceRoot jail.RootName, bookRelPath, unitType string, runState jobstore.ImportRunState, opts *jobstore.TransitionOpts) (jail.RootName, string, error) {
	switch runState.SourceHandlingMode {
	case jobstore.ModeInplace:
		return sourceRoot, bookRelPath, nil

	case jobstore.ModeStage:
		stageBase := "import/stage/" + rec.JobID
		if unitType == "dir" {
			dstBase := stageBase + "/" + bookRelPath
			copied, err := copyTree(ctx, e.fs, sourceRoot, bookRelPath, jail.RootStage, dstBase)
			if err != nil {
				return "", "", err
			}
			opts.Warnings = append(opts.Warnings, copiedSummary(copied, dstBase))
			return jail.RootStage, dstBase, nil
		}
		stem := fileStem(bookRelPath)
		dstFolder := stageBase + "/" + stem
		dstFile := bookRelPath
		if i := lastSlash(bookRelPath); i >= 0 {
			dstFile = bookRelPath[i+1:]
		}
		dstRel := dstFolder + "/" + dstFile
		if err := copyFile(ctx, e.fs, sourceRoot, bookRelPath, jail.RootStage, dstRel); err != nil {
			return "", "", err
		}
		return jail.RootStage, dstFolder, nil

	default:
		return "", "", wizarderr.Internal("unsupported source handling mode: " + string(runState.SourceHandlingMode))
	}
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// copiedSummary is surfaced as a job warning only in the loose sense of
// "informational note" -- it never blocks SUCCEEDED, matching the
// original's append_log_line call for the same event.
func copiedSummary(copied int, dst string) string {
	return "staged files=" + strconv.Itoa(copied) + " dst=" + dst
}
