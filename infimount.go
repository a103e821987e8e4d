// Package infimount defines the core data model shared by the registry,
// file operations, and transfer engine: configured storage sources and the
// entries produced by listing them.
package infimount

import "time"

// SourceKind identifies the backend type behind a Source.
//
// It is deliberately an open string type: configurations written by a newer
// build may carry kinds this build cannot construct, and those must survive a
// load/save round trip untouched. Building a connection for an unknown kind
// fails with ErrUnsupportedKind; loading one never does.
type SourceKind string

const (
	KindLocal     SourceKind = "local"
	KindS3        SourceKind = "s3"
	KindWebDAV    SourceKind = "webdav"
	KindAzureBlob SourceKind = "azure_blob"
	KindGCS       SourceKind = "gcs"
)

// Supported reports whether this build can construct a connection for the kind.
func (k SourceKind) Supported() bool {
	switch k {
	case KindLocal, KindS3, KindWebDAV, KindAzureBlob, KindGCS:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k SourceKind) String() string { return string(k) }

// Source is a named, persisted configuration pointing at one storage
// location. ID is the only identity key; inserting a Source with an existing
// ID replaces it.
//
// Root semantics depend on Kind: a filesystem path for local, "bucket@region"
// for S3, an endpoint URL for WebDAV, "account/container" for Azure Blob, and
// a bucket name for GCS. Entries in Config always take precedence over values
// parsed out of Root.
type Source struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Kind   SourceKind        `json:"kind"`
	Root   string            `json:"root"`
	Config map[string]string `json:"config,omitempty"`
}

// ConfigValue returns the named config entry, or "" when unset.
func (s Source) ConfigValue(key string) string {
	if s.Config == nil {
		return ""
	}
	return s.Config[key]
}

// Entry describes one file or directory produced by a list or stat
// operation. Entries are transient; they are never persisted.
//
// Path is root-relative; directory paths carry a trailing separator. Name is
// the final path segment. ModifiedAt is nil when the backend did not report a
// modification time (or the entry vanished between list and stat).
type Entry struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	IsDir      bool       `json:"is_dir"`
	Size       uint64     `json:"size"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}
