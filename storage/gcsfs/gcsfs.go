// Package gcsfs implements the storage contract over a Google Cloud Storage
// bucket, with the same marker-object directory emulation as the other
// object-store backends.
package gcsfs

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/storage"
)

// Config carries everything needed to open a bucket.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// CredentialsFile points at a service-account JSON key. When empty
	// the default credential chain is used, or anonymous access when
	// Anonymous is set.
	CredentialsFile string

	// Anonymous disables authentication, for public buckets and
	// emulators.
	Anonymous bool

	// Endpoint overrides the service endpoint, for fake-gcs-server and
	// similar emulators.
	Endpoint string
}

// FS is a connection to one bucket.
type FS struct {
	bucket *gcs.BucketHandle
}

var _ storage.Handle = (*FS)(nil)

// New opens a bucket.
func New(ctx context.Context, cfg Config) (*FS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs.open", errors.ErrConfig).WithMessage("bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.New("gcs.open", errors.ErrConfig).WithMessage(err.Error())
	}
	return &FS{bucket: client.Bucket(cfg.Bucket)}, nil
}

// NewFromBucket wraps an existing bucket handle, for tests and embedders.
func NewFromBucket(bucket *gcs.BucketHandle) *FS {
	return &FS{bucket: bucket}
}

// List implements storage.Handle.
func (f *FS) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirKey(dir)

	var out []string
	seen := false

	it := f.bucket.Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translate("gcs.list", dir, err)
		}

		seen = true
		if attrs.Prefix != "" {
			out = append(out, attrs.Prefix)
			continue
		}
		if attrs.Name == prefix {
			continue
		}
		out = append(out, attrs.Name)
	}

	if !seen && prefix != "" {
		return nil, errors.NewPath("gcs.list", dir, errors.ErrNotFound)
	}

	sort.Strings(out)
	return out, nil
}

// Stat implements storage.Handle.
func (f *FS) Stat(ctx context.Context, path string) (storage.Metadata, error) {
	key := strings.Trim(path, "/")
	if key == "" {
		return storage.Metadata{IsDir: true}, nil
	}

	if !strings.HasSuffix(path, "/") {
		attrs, err := f.bucket.Object(key).Attrs(ctx)
		if err == nil {
			md := storage.Metadata{Size: attrs.Size}
			if !attrs.Updated.IsZero() {
				mt := attrs.Updated
				md.ModTime = &mt
			}
			return md, nil
		}
		if !isNotFound(err) {
			return storage.Metadata{}, translate("gcs.stat", path, err)
		}
	}

	ok, err := f.prefixExists(ctx, key+"/")
	if err != nil {
		return storage.Metadata{}, translate("gcs.stat", path, err)
	}
	if ok {
		return storage.Metadata{IsDir: true}, nil
	}
	return storage.Metadata{}, errors.NewPath("gcs.stat", path, errors.ErrNotFound)
}

// Reader implements storage.Handle.
func (f *FS) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := f.bucket.Object(fileKey(path)).NewReader(ctx)
	if err != nil {
		return nil, translate("gcs.read", path, err)
	}
	return r, nil
}

// Writer implements storage.Handle. The SDK's writer already streams and
// commits the object on Close.
func (f *FS) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	return f.bucket.Object(fileKey(path)).NewWriter(ctx), nil
}

// Copy implements storage.Handle via the server-side rewrite API.
func (f *FS) Copy(ctx context.Context, src, dst string) error {
	copier := f.bucket.Object(fileKey(dst)).CopierFrom(f.bucket.Object(fileKey(src)))
	if _, err := copier.Run(ctx); err != nil {
		return translate("gcs.copy", src, err)
	}
	return nil
}

// Rename implements storage.Handle. GCS has no rename, so every object under
// the source is server-side copied and the originals deleted.
func (f *FS) Rename(ctx context.Context, src, dst string) error {
	md, err := f.Stat(ctx, src)
	if err != nil {
		return err
	}

	if !md.IsDir {
		if err := f.Copy(ctx, src, dst); err != nil {
			return err
		}
		return f.deleteObject(ctx, src, fileKey(src))
	}

	srcPrefix := dirKey(src)
	dstPrefix := dirKey(dst)

	keys, err := f.keysUnder(ctx, srcPrefix)
	if err != nil {
		return translate("gcs.rename", src, err)
	}
	for _, key := range keys {
		moved := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if strings.HasSuffix(key, "/") {
			if err := f.putMarker(ctx, moved); err != nil {
				return translate("gcs.rename", src, err)
			}
			continue
		}
		if err := f.Copy(ctx, key, moved); err != nil {
			return err
		}
	}
	for _, key := range keys {
		if err := f.deleteObject(ctx, src, key); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements storage.Handle.
func (f *FS) Remove(ctx context.Context, path string) error {
	md, err := f.Stat(ctx, path)
	if err != nil {
		return err
	}

	if !md.IsDir {
		return f.deleteObject(ctx, path, fileKey(path))
	}

	keys, err := f.keysUnder(ctx, dirKey(path))
	if err != nil {
		return translate("gcs.remove", path, err)
	}
	for _, key := range keys {
		if err := f.deleteObject(ctx, path, key); err != nil {
			return err
		}
	}
	return nil
}

// CreateDir implements storage.Handle by writing a zero-byte marker object.
func (f *FS) CreateDir(ctx context.Context, dir string) error {
	key := dirKey(dir)
	if key == "" {
		return nil
	}
	if err := f.putMarker(ctx, key); err != nil {
		return translate("gcs.mkdir", dir, err)
	}
	return nil
}

// Exists implements storage.Handle.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := f.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (f *FS) putMarker(ctx context.Context, key string) error {
	w := f.bucket.Object(key).NewWriter(ctx)
	return w.Close()
}

func (f *FS) prefixExists(ctx context.Context, prefix string) (bool, error) {
	it := f.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	_, err := it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FS) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := f.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (f *FS) deleteObject(ctx context.Context, path, key string) error {
	if err := f.bucket.Object(key).Delete(ctx); err != nil {
		if isNotFound(err) {
			return nil
		}
		return translate("gcs.remove", path, err)
	}
	return nil
}

func fileKey(path string) string {
	return strings.Trim(path, "/")
}

func dirKey(dir string) string {
	key := strings.Trim(dir, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func isNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// translate maps SDK failures into the shared taxonomy.
func translate(op, path string, err error) error {
	if isNotFound(err) {
		return errors.NewPath(op, path, errors.ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusUnauthorized) {
		return errors.NewPath(op, path, errors.ErrPermissionDenied).WithMessage(apiErr.Message)
	}
	return errors.NewPath(op, path, errors.ErrUnexpected).WithMessage(err.Error())
}
