// Package ops provides the stateless file operations exposed per source:
// list, stat, whole-object read and write, and delete. Each function takes a
// live storage handle and a root-relative path and returns taxonomy errors
// unchanged from the backend.
package ops

import (
	"context"
	"io"
	"strings"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
)

// ListEntries lists the immediate children of dir and stats each one to fill
// in size and modification time.
//
// A child that vanishes between the list and the follow-up stat (or that the
// backend lists but cannot describe) is still emitted, as a bare placeholder
// with is_dir=false and no size or timestamp, rather than failing or
// silently dropping the listing.
func ListEntries(ctx context.Context, h storage.Handle, dir string) ([]infimount.Entry, error) {
	children, err := h.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	entries := make([]infimount.Entry, 0, len(children))
	for _, child := range children {
		name := pathutil.BaseName(child)

		md, err := h.Stat(ctx, child)
		if err != nil {
			if errors.IsNotFound(err) {
				entries = append(entries, infimount.Entry{Path: child, Name: name})
				continue
			}
			return nil, err
		}

		entries = append(entries, infimount.Entry{
			Path:       child,
			Name:       name,
			IsDir:      md.IsDir,
			Size:       uint64(md.Size),
			ModifiedAt: md.ModTime,
		})
	}
	return entries, nil
}

// StatEntry describes a single path, failing with NotFound when it does not
// exist. Directory paths in the result carry a trailing separator.
func StatEntry(ctx context.Context, h storage.Handle, path string) (infimount.Entry, error) {
	md, err := h.Stat(ctx, path)
	if err != nil {
		return infimount.Entry{}, err
	}

	p := path
	if md.IsDir {
		p = pathutil.EnsureDir(p)
	} else {
		p = strings.TrimSuffix(p, "/")
	}

	return infimount.Entry{
		Path:       p,
		Name:       pathutil.BaseName(path),
		IsDir:      md.IsDir,
		Size:       uint64(md.Size),
		ModifiedAt: md.ModTime,
	}, nil
}

// ReadFull reads the whole object at path.
func ReadFull(ctx context.Context, h storage.Handle, path string) ([]byte, error) {
	r, err := h.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewPath("ops.read", path, errors.ErrUnexpected).WithMessage(err.Error())
	}
	return data, nil
}

// WriteFull overwrites the object at path with data, creating it and any
// missing parent directories. The write is durable only once this returns
// nil; a failed Close is reported as the write failing.
func WriteFull(ctx context.Context, h storage.Handle, path string, data []byte) error {
	w, err := h.Writer(ctx, path)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.NewPath("ops.write", path, errors.ErrUnexpected).WithMessage(err.Error())
	}
	return w.Close()
}

// Delete removes the file or directory tree at path. Deleting a missing path
// surfaces the backend's own semantics, NotFound on most.
func Delete(ctx context.Context, h storage.Handle, path string) error {
	return h.Remove(ctx, path)
}
