package jail

import (
	"io"
	"os"
	"path/filepath"

	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// countingWriteCloser tracks bytes written through it, mirroring the
// original's _CountingBinaryIO wrapper used for diagnostics summaries.
type countingWriteCloser struct {
	io.WriteCloser
	n int64
}

func (c *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.WriteCloser.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReadCloser struct {
	io.ReadCloser
	n int64
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func openReadPath(absPath string) (io.ReadCloser, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, statErr(err, absPath)
	}
	if info.IsDir() {
		return nil, wizarderr.Validation("is a directory: " + absPath)
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, wizarderr.Internal(err.Error())
	}
	return &countingReadCloser{ReadCloser: f}, nil
}

func openWritePath(absPath string, overwrite, mkdirParents bool) (io.WriteCloser, error) {
	if existsPath(absPath) && !overwrite {
		return nil, wizarderr.Validation("already exists: " + absPath)
	}
	if mkdirParents {
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, wizarderr.Internal(err.Error())
		}
	}
	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wizarderr.Internal(err.Error())
	}
	return &countingWriteCloser{WriteCloser: f}, nil
}

func openAppendPath(absPath string, mkdirParents bool) (io.WriteCloser, error) {
	if mkdirParents {
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, wizarderr.Internal(err.Error())
		}
	}
	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, wizarderr.Internal(err.Error())
	}
	return &countingWriteCloser{WriteCloser: f}, nil
}

// createExclusivePath atomically creates absPath, failing if it already
// exists. Used for the patches-root lock file: the OS's O_EXCL guarantee
// is what makes "two processes race to acquire the same lock" safe
// without an external lock manager.
func createExclusivePath(absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return wizarderr.Internal(err.Error())
	}
	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return wizarderr.Validation("already exists: " + absPath)
		}
		return wizarderr.Internal(err.Error())
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return wizarderr.Internal(err.Error())
	}
	return nil
}

// atomicWriteBytes writes data to "<absPath>.tmp" and renames it onto
// absPath with overwrite, the canonical atomic-write idiom used for every
// persisted wizard artifact (state.json, job records, the queue state,
// the processed registry).
func atomicWriteBytes(absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return wizarderr.Internal(err.Error())
	}
	tmp := absPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wizarderr.Internal(err.Error())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return wizarderr.Internal(err.Error())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return wizarderr.Internal(err.Error())
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return wizarderr.Internal(err.Error())
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return wizarderr.Internal(err.Error())
	}
	return nil
}
