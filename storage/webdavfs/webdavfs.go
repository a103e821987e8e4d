// Package webdavfs implements the storage contract over a WebDAV endpoint.
package webdavfs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
)

// Config carries everything needed to open a WebDAV endpoint.
type Config struct {
	// Endpoint is the server URL, including any base path. Required.
	Endpoint string

	// Username and Password select basic authentication; both empty
	// means anonymous access.
	Username string
	Password string
}

// FS is a connection to one WebDAV endpoint.
type FS struct {
	client *gowebdav.Client
}

var _ storage.Handle = (*FS)(nil)

// New opens a WebDAV endpoint. Only the URL is validated here; the first
// operation performs the actual network round trip.
func New(cfg Config) (*FS, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("webdav.open", errors.ErrConfig).WithMessage("endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewPath("webdav.open", cfg.Endpoint, errors.ErrConfig).
			WithMessage("endpoint is not a valid URL")
	}

	return &FS{client: gowebdav.NewClient(cfg.Endpoint, cfg.Username, cfg.Password)}, nil
}

// List implements storage.Handle.
func (f *FS) List(_ context.Context, dir string) ([]string, error) {
	infos, err := f.client.ReadDir(remote(dir))
	if err != nil {
		return nil, translate("webdav.list", dir, err)
	}

	base := ""
	if rel := strings.Trim(dir, "/"); rel != "" {
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
func (f *FS) Stat(_ context.Context, path string) (storage.Metadata, error) {
	if strings.Trim(path, "/") == "" {
		return storage.Metadata{IsDir: true}, nil
	}

	info, err := f.client.Stat(remote(path))
	if err != nil {
		return storage.Metadata{}, translate("webdav.stat", path, err)
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
func (f *FS) Reader(_ context.Context, path string) (io.ReadCloser, error) {
	r, err := f.client.ReadStream(remote(path))
	if err != nil {
		return nil, translate("webdav.read", path, err)
	}
	return r, nil
}

// Writer implements storage.Handle. Bytes are streamed through a pipe into a
// single PUT; the write completes when Close returns.
func (f *FS) Writer(_ context.Context, path string) (io.WriteCloser, error) {
	if parent, ok := pathutil.ParentDir(path); ok {
		if err := f.client.MkdirAll(remote(parent), 0o755); err != nil {
			return nil, translate("webdav.write", path, err)
		}
	}

	pr, pw := io.Pipe()
	w := &streamWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		err := f.client.WriteStream(remote(path), pr, 0o644)
		if err != nil {
			err = translate("webdav.write", path, err)
			pr.CloseWithError(err)
		}
		w.done <- err
	}()
	return w, nil
}

type streamWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *streamWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *streamWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// Copy implements storage.Handle via the server-side COPY method.
func (f *FS) Copy(_ context.Context, src, dst string) error {
	if err := f.client.Copy(remote(src), remote(dst), true); err != nil {
		return translate("webdav.copy", src, err)
	}
	return nil
}

// Rename implements storage.Handle via the server-side MOVE method, which
// relocates directories recursively.
func (f *FS) Rename(_ context.Context, src, dst string) error {
	if err := f.client.Rename(remote(src), remote(dst), true); err != nil {
		return translate("webdav.rename", src, err)
	}
	return nil
}

// Remove implements storage.Handle.
func (f *FS) Remove(_ context.Context, path string) error {
	// DELETE on a collection is recursive per the protocol, but a missing
	// path must still surface as NotFound.
	if _, err := f.client.Stat(remote(path)); err != nil {
		return translate("webdav.remove", path, err)
	}
	if err := f.client.RemoveAll(remote(path)); err != nil {
		return translate("webdav.remove", path, err)
	}
	return nil
}

// CreateDir implements storage.Handle.
func (f *FS) CreateDir(_ context.Context, dir string) error {
	if strings.Trim(dir, "/") == "" {
		return nil
	}
	if err := f.client.MkdirAll(remote(dir), 0o755); err != nil {
		return translate("webdav.mkdir", dir, err)
	}
	return nil
}

// Exists implements storage.Handle.
func (f *FS) Exists(_ context.Context, path string) (bool, error) {
	if strings.Trim(path, "/") == "" {
		return true, nil
	}
	if _, err := f.client.Stat(remote(path)); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, translate("webdav.stat", path, err)
	}
	return true, nil
}

// remote converts a root-relative path into the absolute form gowebdav
// expects.
func remote(path string) string {
	return "/" + strings.Trim(path, "/")
}

// translate maps gowebdav failures into the shared taxonomy.
func translate(op, path string, err error) error {
	switch {
	case gowebdav.IsErrNotFound(err):
		return errors.NewPath(op, path, errors.ErrNotFound)
	case gowebdav.IsErrCode(err, http.StatusUnauthorized), gowebdav.IsErrCode(err, http.StatusForbidden):
		return errors.NewPath(op, path, errors.ErrPermissionDenied)
	default:
		return errors.NewPath(op, path, errors.ErrUnexpected).WithMessage(err.Error())
	}
}
