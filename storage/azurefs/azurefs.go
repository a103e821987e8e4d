// Package azurefs implements the storage contract over an Azure Blob Storage
// container. Blob namespaces are flat, so directories are emulated with
// zero-byte marker blobs ending in the separator, exactly as the S3 backend
// does with its keys.
package azurefs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/storage"
)

// Config carries everything needed to open a container.
type Config struct {
	// Account is the storage account name. Required.
	Account string

	// Container is the container name. Required.
	Container string

	// AccountKey is the shared key. When empty the endpoint must allow
	// anonymous access.
	AccountKey string

	// Endpoint overrides the service URL, for Azurite and sovereign
	// clouds. Defaults to https://<account>.blob.core.windows.net/.
	Endpoint string
}

// FS is a connection to one container.
type FS struct {
	container *container.Client
}

var _ storage.Handle = (*FS)(nil)

// New opens a container. Credentials are validated for shape only; the first
// operation performs the network round trip.
func New(cfg Config) (*FS, error) {
	if cfg.Account == "" || cfg.Container == "" {
		return nil, errors.New("azure.open", errors.ErrConfig).
			WithMessage("account and container are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	var client *azblob.Client
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if err != nil {
			return nil, errors.New("azure.open", errors.ErrConfig).WithMessage(err.Error())
		}
		c, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		if err != nil {
			return nil, errors.New("azure.open", errors.ErrConfig).WithMessage(err.Error())
		}
		client = c
	} else {
		c, err := azblob.NewClientWithNoCredential(endpoint, nil)
		if err != nil {
			return nil, errors.New("azure.open", errors.ErrConfig).WithMessage(err.Error())
		}
		client = c
	}

	return &FS{container: client.ServiceClient().NewContainerClient(cfg.Container)}, nil
}

// List implements storage.Handle.
func (f *FS) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirKey(dir)

	var out []string
	seen := false

	pager := f.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate("azure.list", dir, err)
		}
		for _, bp := range page.Segment.BlobPrefixes {
			out = append(out, deref(bp.Name))
			seen = true
		}
		for _, item := range page.Segment.BlobItems {
			name := deref(item.Name)
			seen = true
			if name == prefix {
				continue
			}
			out = append(out, name)
		}
	}

	if !seen && prefix != "" {
		return nil, errors.NewPath("azure.list", dir, errors.ErrNotFound)
	}

	sort.Strings(out)
	return out, nil
}

// Stat implements storage.Handle. A path counts as a directory when its
// marker blob exists or when any blob lives under its prefix.
func (f *FS) Stat(ctx context.Context, path string) (storage.Metadata, error) {
	key := strings.Trim(path, "/")
	if key == "" {
		return storage.Metadata{IsDir: true}, nil
	}

	if !strings.HasSuffix(path, "/") {
		props, err := f.container.NewBlobClient(key).GetProperties(ctx, nil)
		if err == nil {
			md := storage.Metadata{}
			if props.ContentLength != nil {
				md.Size = *props.ContentLength
			}
			if props.LastModified != nil {
				mt := *props.LastModified
				md.ModTime = &mt
			}
			return md, nil
		}
		if !isNotFound(err) {
			return storage.Metadata{}, translate("azure.stat", path, err)
		}
	}

	ok, err := f.prefixExists(ctx, key+"/")
	if err != nil {
		return storage.Metadata{}, translate("azure.stat", path, err)
	}
	if ok {
		return storage.Metadata{IsDir: true}, nil
	}
	return storage.Metadata{}, errors.NewPath("azure.stat", path, errors.ErrNotFound)
}

// Reader implements storage.Handle.
func (f *FS) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := f.container.NewBlobClient(fileKey(path)).DownloadStream(ctx, nil)
	if err != nil {
		return nil, translate("azure.read", path, err)
	}
	return resp.Body, nil
}

// Writer implements storage.Handle. Bytes are streamed through a pipe into a
// block-blob upload; the blob becomes visible only when Close returns nil.
func (f *FS) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	w := &uploadWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := f.container.NewBlockBlobClient(fileKey(path)).UploadStream(ctx, pr, nil)
		if err != nil {
			err = translate("azure.write", path, err)
			pr.CloseWithError(err)
		}
		w.done <- err
	}()

	return w, nil
}

type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *uploadWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *uploadWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// Copy implements storage.Handle by streaming the blob down and back up.
// Azure's server-side copy is asynchronous and needs polling, which buys
// nothing for the single-file sizes this path handles.
func (f *FS) Copy(ctx context.Context, src, dst string) error {
	r, err := f.Reader(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := f.Writer(ctx, dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return translate("azure.copy", dst, err)
	}
	return w.Close()
}

// Rename implements storage.Handle. Blob storage has no rename, so every
// blob under the source is copied and the originals deleted.
func (f *FS) Rename(ctx context.Context, src, dst string) error {
	md, err := f.Stat(ctx, src)
	if err != nil {
		return err
	}

	if !md.IsDir {
		if err := f.Copy(ctx, src, dst); err != nil {
			return err
		}
		return f.deleteBlob(ctx, src, fileKey(src))
	}

	srcPrefix := dirKey(src)
	dstPrefix := dirKey(dst)

	keys, err := f.keysUnder(ctx, srcPrefix)
	if err != nil {
		return translate("azure.rename", src, err)
	}
	for _, key := range keys {
		moved := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if strings.HasSuffix(key, "/") {
			if err := f.putMarker(ctx, moved); err != nil {
				return translate("azure.rename", src, err)
			}
			continue
		}
		if err := f.Copy(ctx, key, moved); err != nil {
			return err
		}
	}
	for _, key := range keys {
		if err := f.deleteBlob(ctx, src, key); err != nil {
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
		return f.deleteBlob(ctx, path, fileKey(path))
	}

	keys, err := f.keysUnder(ctx, dirKey(path))
	if err != nil {
		return translate("azure.remove", path, err)
	}
	for _, key := range keys {
		if err := f.deleteBlob(ctx, path, key); err != nil {
			return err
		}
	}
	return nil
}

// CreateDir implements storage.Handle by writing a zero-byte marker blob.
func (f *FS) CreateDir(ctx context.Context, dir string) error {
	key := dirKey(dir)
	if key == "" {
		return nil
	}
	if err := f.putMarker(ctx, key); err != nil {
		return translate("azure.mkdir", dir, err)
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
	_, err := f.container.NewBlockBlobClient(key).UploadStream(ctx, strings.NewReader(""), nil)
	return err
}

func (f *FS) prefixExists(ctx context.Context, prefix string) (bool, error) {
	pager := f.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, err
	}
	return len(page.Segment.BlobItems) > 0, nil
}

func (f *FS) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := f.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			keys = append(keys, deref(item.Name))
		}
	}
	return keys, nil
}

func (f *FS) deleteBlob(ctx context.Context, path, key string) error {
	if _, err := f.container.NewBlobClient(key).Delete(ctx, nil); err != nil {
		if isNotFound(err) {
			// Marker blobs are optional; a directory can exist purely
			// through its children.
			return nil
		}
		return translate("azure.remove", path, err)
	}
	return nil
}

func fileKey(path string) string {
	return strings.Trim(path, "/")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dirKey(dir string) string {
	key := strings.Trim(dir, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// translate maps SDK failures into the shared taxonomy.
func translate(op, path string, err error) error {
	if isNotFound(err) {
		return errors.NewPath(op, path, errors.ErrNotFound)
	}
	if bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure, bloberror.InsufficientAccountPermissions) {
		return errors.NewPath(op, path, errors.ErrPermissionDenied).WithMessage(err.Error())
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && (respErr.StatusCode == http.StatusForbidden || respErr.StatusCode == http.StatusUnauthorized) {
		return errors.NewPath(op, path, errors.ErrPermissionDenied).WithMessage(err.Error())
	}
	return errors.NewPath(op, path, errors.ErrUnexpected).WithMessage(err.Error())
}
