// Package s3fs implements the storage contract over an S3 (or S3-compatible)
// bucket. Directories are emulated the usual way: zero-byte keys ending in
// the separator act as markers, and any key prefix with at least one object
// under it counts as an existing directory.
package s3fs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/storage"
)

// deleteBatchSize is the DeleteObjects API limit per request.
const deleteBatchSize = 1000

// Config carries everything needed to open a bucket.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// Region is the bucket's region. Falls back to the ambient AWS
	// configuration when empty.
	Region string

	// Endpoint overrides the service endpoint, for S3-compatible stores
	// like MinIO.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When both
	// are empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle addresses the bucket in the URL path instead of the
	// host name. Most S3-compatible stores need it.
	ForcePathStyle bool
}

// FS is a connection to one bucket.
type FS struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

var _ storage.Handle = (*FS)(nil)

// New opens a bucket. No network I/O happens here; the first operation
// triggers it.
func New(ctx context.Context, cfg Config) (*FS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3.open", errors.ErrConfig).WithMessage("bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New("s3.open", errors.ErrConfig).WithMessage(err.Error())
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewFromClient(client, cfg.Bucket), nil
}

// NewFromClient wraps an existing SDK client, for tests and embedders.
func NewFromClient(client *s3.Client, bucket string) *FS {
	return &FS{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// List implements storage.Handle.
func (f *FS) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirKey(dir)

	var out []string
	seen := false

	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate("s3.list", dir, err)
		}

		for _, cp := range page.CommonPrefixes {
			out = append(out, aws.ToString(cp.Prefix))
			seen = true
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			seen = true
			if key == prefix {
				// The directory's own marker object.
				continue
			}
			out = append(out, key)
		}
	}

	if !seen && prefix != "" {
		return nil, errors.NewPath("s3.list", dir, errors.ErrNotFound)
	}

	sort.Strings(out)
	return out, nil
}

// Stat implements storage.Handle. A path counts as a directory when its
// marker object exists or when any key lives under its prefix.
func (f *FS) Stat(ctx context.Context, path string) (storage.Metadata, error) {
	key := strings.Trim(path, "/")
	if key == "" {
		return storage.Metadata{IsDir: true}, nil
	}

	if !strings.HasSuffix(path, "/") {
		head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			md := storage.Metadata{Size: aws.ToInt64(head.ContentLength)}
			if head.LastModified != nil {
				mt := *head.LastModified
				md.ModTime = &mt
			}
			return md, nil
		}
		if !isNotFound(err) {
			return storage.Metadata{}, translate("s3.stat", path, err)
		}
	}

	ok, err := f.prefixExists(ctx, key+"/")
	if err != nil {
		return storage.Metadata{}, translate("s3.stat", path, err)
	}
	if ok {
		return storage.Metadata{IsDir: true}, nil
	}
	return storage.Metadata{}, errors.NewPath("s3.stat", path, errors.ErrNotFound)
}

// Reader implements storage.Handle.
func (f *FS) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(fileKey(path)),
	})
	if err != nil {
		return nil, translate("s3.read", path, err)
	}
	return out.Body, nil
}

// Writer implements storage.Handle. Bytes written are streamed through a
// pipe into a multipart upload; the object becomes visible only when Close
// returns nil.
func (f *FS) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	w := &uploadWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := f.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(fileKey(path)),
			Body:   pr,
		})
		if err != nil {
			err = translate("s3.write", path, err)
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

// Copy implements storage.Handle via server-side CopyObject.
func (f *FS) Copy(ctx context.Context, src, dst string) error {
	_, err := f.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(f.bucket),
		Key:        aws.String(fileKey(dst)),
		CopySource: aws.String(f.bucket + "/" + url.PathEscape(fileKey(src))),
	})
	if err != nil {
		return translate("s3.copy", src, err)
	}
	return nil
}

// Rename implements storage.Handle. S3 has no native rename, so every key
// under the source is server-side copied and the originals deleted.
func (f *FS) Rename(ctx context.Context, src, dst string) error {
	md, err := f.Stat(ctx, src)
	if err != nil {
		return err
	}

	if !md.IsDir {
		if err := f.Copy(ctx, src, dst); err != nil {
			return err
		}
		return f.deleteKeys(ctx, src, []string{fileKey(src)})
	}

	srcPrefix := dirKey(src)
	dstPrefix := dirKey(dst)

	keys, err := f.keysUnder(ctx, srcPrefix)
	if err != nil {
		return translate("s3.rename", src, err)
	}
	for _, key := range keys {
		moved := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if strings.HasSuffix(key, "/") {
			if err := f.putMarker(ctx, moved); err != nil {
				return translate("s3.rename", src, err)
			}
			continue
		}
		if err := f.Copy(ctx, key, moved); err != nil {
			return err
		}
	}
	return f.deleteKeys(ctx, src, keys)
}

// Remove implements storage.Handle. Trailing-slash paths delete every key
// under the prefix, idempotently. Unsuffixed paths are stat'd first so a
// directory named without the separator is still removed recursively; an
// absent unsuffixed path surfaces NotFound from that stat.
func (f *FS) Remove(ctx context.Context, path string) error {
	if strings.HasSuffix(path, "/") || path == "" {
		keys, err := f.keysUnder(ctx, dirKey(path))
		if err != nil {
			return translate("s3.remove", path, err)
		}
		return f.deleteKeys(ctx, path, keys)
	}

	// An unsuffixed path may still name a directory.
	md, err := f.Stat(ctx, path)
	if err != nil {
		return err
	}
	if md.IsDir {
		keys, err := f.keysUnder(ctx, dirKey(path))
		if err != nil {
			return translate("s3.remove", path, err)
		}
		return f.deleteKeys(ctx, path, keys)
	}
	return f.deleteKeys(ctx, path, []string{fileKey(path)})
}

// CreateDir implements storage.Handle by writing a zero-byte marker object.
func (f *FS) CreateDir(ctx context.Context, dir string) error {
	key := dirKey(dir)
	if key == "" {
		return nil
	}
	if err := f.putMarker(ctx, key); err != nil {
		return translate("s3.mkdir", dir, err)
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
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	return err
}

func (f *FS) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0, nil
}

func (f *FS) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (f *FS) deleteKeys(ctx context.Context, path string, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		_, err := f.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(f.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return translate("s3.remove", path, err)
		}
	}
	return nil
}

// fileKey converts a root-relative path into an object key.
func fileKey(path string) string {
	return strings.Trim(path, "/")
}

// dirKey converts a root-relative directory path into a key prefix with a
// trailing separator; the root becomes the empty prefix.
func dirKey(dir string) string {
	key := strings.Trim(dir, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

// translate maps SDK failures into the shared taxonomy.
func translate(op, path string, err error) error {
	if isNotFound(err) {
		return errors.NewPath(op, path, errors.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.NewPath(op, path, errors.ErrPermissionDenied).WithMessage(apiErr.ErrorMessage())
		case "NoSuchBucket":
			return errors.NewPath(op, path, errors.ErrNotFound).WithMessage(apiErr.ErrorMessage())
		}
	}
	return errors.NewPath(op, path, errors.ErrUnexpected).WithMessage(err.Error())
}
