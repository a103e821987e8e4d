// Package storage defines the uniform contract every backend implements.
// All paths crossing this boundary are root-relative and slash-separated;
// directory paths carry a trailing separator and "" (or "/") means the
// source root. Backends translate their native failures into the shared
// error taxonomy before returning.
package storage

import (
	"context"
	"io"
	"time"
)

// Metadata describes a single path as reported by Stat.
type Metadata struct {
	// IsDir reports whether the path is a directory (or, on object
	// stores, a prefix with at least one object under it).
	IsDir bool

	// Size is the content length in bytes. Zero for directories.
	Size int64

	// ModTime is the last modification time, or nil when the backend
	// does not track one for this path.
	ModTime *time.Time
}

// Handle is a live connection to one configured source. Handles are safe for
// concurrent use and remain valid until the registry drops them.
//
// Implementations must translate native errors into the taxonomy sentinels:
// a missing path is ErrNotFound, a refused credential is ErrPermissionDenied,
// and everything unclassified wraps ErrUnexpected.
type Handle interface {
	// List returns the direct children of a directory as root-relative
	// paths, directories suffixed with the separator. Listing a missing
	// directory returns ErrNotFound; listing an empty one returns an
	// empty slice.
	List(ctx context.Context, dir string) ([]string, error)

	// Stat describes a single path.
	Stat(ctx context.Context, path string) (Metadata, error)

	// Reader opens the file at path for streaming reads.
	Reader(ctx context.Context, path string) (io.ReadCloser, error)

	// Writer opens the file at path for streaming writes, creating it
	// (and any missing parents) or truncating an existing file. The
	// write is not durable until Close returns nil.
	Writer(ctx context.Context, path string) (io.WriteCloser, error)

	// Copy duplicates a single file within this source. It is the
	// backend-native fast path used when source and destination share a
	// connection; it never crosses sources and never copies directories.
	Copy(ctx context.Context, src, dst string) error

	// Rename moves a file or directory tree within this source.
	Rename(ctx context.Context, src, dst string) error

	// Remove deletes the file or directory at path. Directories are
	// removed recursively.
	Remove(ctx context.Context, path string) error

	// CreateDir ensures the directory at path exists, creating missing
	// parents. On backends without real directories this may be a
	// marker write or a no-op.
	CreateDir(ctx context.Context, dir string) error

	// Exists reports whether path currently resolves, without
	// classifying what it is.
	Exists(ctx context.Context, path string) (bool, error)
}
