// Package queue implements Component E: the per-patches-root exclusive
// lock, the bounded worker pool that drives PENDING import jobs, and
// pause/resume/retry/cancellation semantics.
package queue

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

const locksDir = "import/engine/locks"

// Lock represents one process's hold on a patches root's exclusive lock.
// It is acquired once, for the lifetime of the owning process; child
// operations never re-acquire it.
type Lock struct {
	fs      *jail.FileService
	relPath string
}

func lockRelPath(patchesRootKey string) string {
	return locksDir + "/" + fingerprint.Truncate16(fingerprint.SHA256Hex([]byte(patchesRootKey))) + ".lock"
}

// AcquireLock attempts to exclusively lock patchesRootKey (typically the
// root name plus the rel_path a session was started against) under the
// Jobs root. If the lock file already exists, returns an
// ILLEGAL_TRANSITION-coded error — the two-process exclusion invariant
// spec.md requires. Whether the process that created the file is still
// running is not checked.
func AcquireLock(ctx context.Context, fs *jail.FileService, patchesRootKey string) (*Lock, error) {
	rel := lockRelPath(patchesRootKey)
	payload := []byte(strconv.Itoa(os.Getpid()))
	if err := fs.CreateExclusive(ctx, jail.RootJobs, rel, payload); err != nil {
		return nil, wizarderr.IllegalTransition(fmt.Sprintf("patches root %q is already locked by another process", patchesRootKey))
	}
	return &Lock{fs: fs, relPath: rel}, nil
}

// Release drops the lock. Safe to call once; the owning process should
// defer this immediately after a successful AcquireLock.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if !l.fs.Exists(ctx, jail.RootJobs, l.relPath) {
		return nil
	}
	return l.fs.DeleteFile(ctx, jail.RootJobs, l.relPath)
}
