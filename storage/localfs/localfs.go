// Package localfs implements the storage contract over a directory of the
// local filesystem, using go-billy so tests can run against an in-memory
// filesystem with identical semantics.
package localfs

import (
	"context"
	"io"
	iofs "io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
)

// FS is a connection to one local directory. All paths handed to it are
// interpreted relative to that root; escaping the root is prevented by the
// chroot underneath.
type FS struct {
	fs billy.Filesystem
}

var _ storage.Handle = (*FS)(nil)

// New opens a local source rooted at dir. The root must already exist and be
// a directory; a leading "~" is expanded to the current user's home.
func New(dir string) (*FS, error) {
	expanded, err := pathutil.ExpandHome(dir)
	if err != nil {
		return nil, errors.NewPath("local.open", dir, errors.ErrConfig).WithMessage("cannot resolve home directory")
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPath("local.open", expanded, errors.ErrConfig).WithMessage("root does not exist")
		}
		return nil, errors.NewPath("local.open", expanded, errors.ErrConfig).WithMessage(err.Error())
	}
	if !info.IsDir() {
		return nil, errors.NewPath("local.open", expanded, errors.ErrConfig).WithMessage("root is not a directory")
	}

	return &FS{fs: osfs.New(expanded)}, nil
}

// NewFromBilly wraps an existing billy filesystem. It exists so tests and
// embedders can supply memfs or another implementation directly.
func NewFromBilly(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// List implements storage.Handle.
func (l *FS) List(_ context.Context, dir string) ([]string, error) {
	rel := norm(dir)

	infos, err := l.fs.ReadDir(rel)
	if err != nil {
		return nil, translate("local.list", dir, err)
	}
	if len(infos) == 0 && rel != "" {
		// memfs reports empty for missing directories instead of failing.
		if _, err := l.fs.Stat(rel); err != nil {
			return nil, translate("local.list", dir, err)
		}
	}

	base := ""
	if rel != "" {
		base = pathutil.EnsureDir(rel)
	}

	out := make([]string, 0, len(infos))
	for _, info := range infos {
		child := pathutil.JoinDir(base, info.Name())
		if info.IsDir() {
			child = pathutil.EnsureDir(child)
		}
		out = append(out, child)
	}
	sort.Strings(out)
	return out, nil
}

// Stat implements storage.Handle.
func (l *FS) Stat(_ context.Context, path string) (storage.Metadata, error) {
	rel := norm(path)
	if rel == "" {
		return storage.Metadata{IsDir: true}, nil
	}

	info, err := l.fs.Stat(rel)
	if err != nil {
		return storage.Metadata{}, translate("local.stat", path, err)
	}

	md := storage.Metadata{IsDir: info.IsDir()}
	if !info.IsDir() {
		md.Size = info.Size()
	}
	if mt := info.ModTime(); !mt.IsZero() {
		md.ModTime = &mt
	}
	return md, nil
}

// Reader implements storage.Handle.
func (l *FS) Reader(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := l.fs.Open(norm(path))
	if err != nil {
		return nil, translate("local.read", path, err)
	}
	return f, nil
}

// Writer implements storage.Handle. billy's Create makes missing parent
// directories on both osfs and memfs, so no separate MkdirAll is needed.
func (l *FS) Writer(_ context.Context, path string) (io.WriteCloser, error) {
	f, err := l.fs.Create(norm(path))
	if err != nil {
		return nil, translate("local.write", path, err)
	}
	return f, nil
}

// Copy implements storage.Handle.
func (l *FS) Copy(_ context.Context, src, dst string) error {
	in, err := l.fs.Open(norm(src))
	if err != nil {
		return translate("local.copy", src, err)
	}
	defer in.Close()

	out, err := l.fs.Create(norm(dst))
	if err != nil {
		return translate("local.copy", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return translate("local.copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return translate("local.copy", dst, err)
	}
	return nil
}

// Rename implements storage.Handle.
func (l *FS) Rename(_ context.Context, src, dst string) error {
	if err := l.fs.Rename(norm(src), norm(dst)); err != nil {
		return translate("local.rename", src, err)
	}
	return nil
}

// Remove implements storage.Handle. Directories are removed bottom-up since
// billy's Remove only deletes empty ones.
func (l *FS) Remove(_ context.Context, path string) error {
	if err := l.removeAll(norm(path)); err != nil {
		return translate("local.remove", path, err)
	}
	return nil
}

func (l *FS) removeAll(rel string) error {
	info, err := l.fs.Stat(rel)
	if err != nil {
		return err
	}

	if info.IsDir() {
		children, err := l.fs.ReadDir(rel)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := l.removeAll(pathutil.JoinDir(rel, child.Name())); err != nil {
				return err
			}
		}
	}

	return l.fs.Remove(rel)
}

// CreateDir implements storage.Handle.
func (l *FS) CreateDir(_ context.Context, dir string) error {
	rel := norm(dir)
	if rel == "" {
		return nil
	}
	if err := l.fs.MkdirAll(rel, 0o755); err != nil {
		return translate("local.mkdir", dir, err)
	}
	return nil
}

// Exists implements storage.Handle.
func (l *FS) Exists(_ context.Context, path string) (bool, error) {
	rel := norm(path)
	if rel == "" {
		return true, nil
	}

	if _, err := l.fs.Stat(rel); err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, translate("local.stat", path, err)
	}
	return true, nil
}

// norm strips the separators that mark directories and the root, yielding
// the relative form billy expects.
func norm(p string) string {
	return strings.Trim(p, "/")
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, iofs.ErrNotExist)
}

// translate maps OS and billy failures into the shared taxonomy.
func translate(op, path string, err error) error {
	switch {
	case isNotExist(err):
		return errors.NewPath(op, path, errors.ErrNotFound)
	case os.IsPermission(err) || errors.Is(err, iofs.ErrPermission):
		return errors.NewPath(op, path, errors.ErrPermissionDenied)
	case os.IsExist(err) || errors.Is(err, iofs.ErrExist):
		return errors.NewPath(op, path, errors.ErrAlreadyExists)
	default:
		return errors.NewPath(op, path, errors.ErrUnexpected).WithMessage(err.Error())
	}
}
