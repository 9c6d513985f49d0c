package jail

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// FileService is the jailed filesystem capability. Every other component
// performs disk I/O exclusively through a FileService instance.
type FileService struct {
	roots map[RootName]string
	bus   *diagnostics.Bus
}

// Roots maps a RootName to its bound absolute directory on disk.
type Roots map[RootName]string

// NewFileService constructs a FileService over the given roots, creating
// each root directory if it does not exist. bus may be nil, in which case
// diagnostics emission is a no-op.
func NewFileService(roots Roots, bus *diagnostics.Bus) (*FileService, error) {
	resolved := make(map[RootName]string, len(roots))
	for name, dir := range roots {
		abs, err := filepath.Abs(expandHome(dir))
		if err != nil {
			return nil, wizarderr.Internal("cannot resolve root " + string(name) + ": " + err.Error())
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, wizarderr.Internal("cannot create root " + string(name) + ": " + err.Error())
		}
		resolved[name] = abs
	}
	return &FileService{roots: resolved, bus: bus}, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func (fs *FileService) rootDir(root RootName) (string, error) {
	dir, ok := fs.roots[root]
	if !ok {
		return "", wizarderr.Internal("unknown root: " + string(root))
	}
	return dir, nil
}

// RootDir returns the absolute directory bound to root.
func (fs *FileService) RootDir(root RootName) (string, error) { return fs.rootDir(root) }

func (fs *FileService) observe(ctx context.Context, op string, base map[string]any) (*diagnostics.Observation, context.Context) {
	return fs.bus.Observe(ctx, "file_io", op, base)
}

// Resolve resolves a relative path under root to an absolute path.
func (fs *FileService) Resolve(ctx context.Context, root RootName, rel string) (abs string, err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return "", err
	}
	obs, _ := fs.observe(ctx, "file_io.resolve", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	abs, err = Resolve(dir, rel)
	return abs, err
}

// List lists entries under root/rel, sorted by rel_path.
func (fs *FileService) List(ctx context.Context, root RootName, rel string, recursive bool) (entries []FileEntry, err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return nil, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	obs, _ := fs.observe(ctx, "file_io.list", map[string]any{"root": string(root), "rel_path": rel, "recursive": recursive})
	defer obs.End(&err)

	entries, err = listDir(abs, rel, recursive)
	if err == nil {
		obs.Summary()["items_count"] = len(entries)
	}
	return entries, err
}

// Stat returns metadata for root/rel.
func (fs *FileService) Stat(ctx context.Context, root RootName, rel string) (st FileStat, err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return FileStat{}, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return FileStat{}, err
	}
	obs, _ := fs.observe(ctx, "file_io.stat", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	st, err = statPath(abs, rel)
	return st, err
}

// Exists reports whether root/rel exists. It never fails for unknown paths.
func (fs *FileService) Exists(ctx context.Context, root RootName, rel string) bool {
	dir, err := fs.rootDir(root)
	if err != nil {
		return false
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return false
	}
	obs, _ := fs.observe(ctx, "file_io.exists", map[string]any{"root": string(root), "rel_path": rel})
	var err2 error
	defer obs.End(&err2)
	return existsPath(abs)
}

// Mkdir creates root/rel.
func (fs *FileService) Mkdir(ctx context.Context, root RootName, rel string, parents, existOK bool) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.mkdir", map[string]any{"root": string(root), "rel_path": rel, "parents": parents, "exist_ok": existOK})
	defer obs.End(&err)

	err = mkdirPath(abs, parents, existOK)
	return err
}

// Rename moves root/src to root/dst.
func (fs *FileService) Rename(ctx context.Context, root RootName, src, dst string, overwrite bool) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	absSrc, err := Resolve(dir, src)
	if err != nil {
		return err
	}
	absDst, err := Resolve(dir, dst)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.rename", map[string]any{"root": string(root), "src": src, "dst": dst, "overwrite": overwrite})
	defer obs.End(&err)

	err = renamePath(absSrc, absDst, overwrite)
	return err
}

// DeleteFile removes a single file.
func (fs *FileService) DeleteFile(ctx context.Context, root RootName, rel string) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.delete", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	err = deleteFilePath(abs)
	if err == nil {
		obs.Summary()["deleted"] = true
	}
	return err
}

// Rmdir removes an empty directory.
func (fs *FileService) Rmdir(ctx context.Context, root RootName, rel string) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.rmdir", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	err = rmdirPath(abs)
	return err
}

// Rmtree removes a directory tree recursively.
func (fs *FileService) Rmtree(ctx context.Context, root RootName, rel string) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.rmtree", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	err = rmtreePath(abs)
	return err
}

// Copy copies src to dst within root, recursively and deterministically.
func (fs *FileService) Copy(ctx context.Context, root RootName, src, dst string, overwrite, mkdirParents bool) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	absSrc, err := Resolve(dir, src)
	if err != nil {
		return err
	}
	absDst, err := Resolve(dir, dst)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.copy", map[string]any{"root": string(root), "src": src, "dst": dst, "overwrite": overwrite})
	defer obs.End(&err)

	err = copyTree(absSrc, absDst, overwrite, mkdirParents)
	return err
}

// Checksum computes the SHA-256 checksum of root/rel.
func (fs *FileService) Checksum(ctx context.Context, root RootName, rel string) (sum string, err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return "", err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return "", err
	}
	obs, _ := fs.observe(ctx, "file_io.checksum", map[string]any{"root": string(root), "rel_path": rel, "algo": "sha256"})
	defer obs.End(&err)

	sum, err = checksumPath(abs)
	return sum, err
}

// TailBytes returns the last maxBytes bytes of root/rel.
func (fs *FileService) TailBytes(ctx context.Context, root RootName, rel string, maxBytes int) (data []byte, err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return nil, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	obs, _ := fs.observe(ctx, "file_io.tail_bytes", map[string]any{"root": string(root), "rel_path": rel, "max_bytes": maxBytes})
	defer obs.End(&err)

	data, err = tailBytesPath(abs, maxBytes)
	if err == nil {
		obs.Summary()["bytes"] = len(data)
	}
	return data, err
}

// OpenRead opens root/rel for reading. The caller must Close it.
func (fs *FileService) OpenRead(ctx context.Context, root RootName, rel string) (io.ReadCloser, error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return nil, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	return openReadPath(abs)
}

// OpenWrite opens root/rel for writing (truncating). The caller must Close it.
func (fs *FileService) OpenWrite(ctx context.Context, root RootName, rel string, overwrite, mkdirParents bool) (io.WriteCloser, error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return nil, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	return openWritePath(abs, overwrite, mkdirParents)
}

// OpenAppend opens root/rel for appending. The caller must Close it.
func (fs *FileService) OpenAppend(ctx context.Context, root RootName, rel string, mkdirParents bool) (io.WriteCloser, error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return nil, err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	return openAppendPath(abs, mkdirParents)
}

// AtomicWrite writes data to root/rel via the temp-file-then-rename idiom.
func (fs *FileService) AtomicWrite(ctx context.Context, root RootName, rel string, data []byte) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.atomic_write", map[string]any{"root": string(root), "rel_path": rel, "bytes": len(data)})
	defer obs.End(&err)

	err = atomicWriteBytes(abs, data)
	return err
}

// CreateExclusive creates root/rel, failing with a VALIDATION_ERROR if it
// already exists. This is the primitive the patches-root lock is built on.
func (fs *FileService) CreateExclusive(ctx context.Context, root RootName, rel string, data []byte) (err error) {
	dir, err := fs.rootDir(root)
	if err != nil {
		return err
	}
	abs, err := Resolve(dir, rel)
	if err != nil {
		return err
	}
	obs, _ := fs.observe(ctx, "file_io.create_exclusive", map[string]any{"root": string(root), "rel_path": rel})
	defer obs.End(&err)

	err = createExclusivePath(abs, data)
	return err
}
