package registry

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
	"github.com/infimount/infimount/storage/azurefs"
	"github.com/infimount/infimount/storage/gcsfs"
	"github.com/infimount/infimount/storage/localfs"
	"github.com/infimount/infimount/storage/s3fs"
	"github.com/infimount/infimount/storage/webdavfs"
)

// buildHandle constructs a live connection for a source. One branch per
// kind; kinds this build does not know fail here (and only here) with
// ErrUnsupportedKind.
//
// Builders themselves perform no network I/O. Locator parsing precedence is
// uniform: an explicit config entry always overrides the value derived from
// splitting root.
func buildHandle(ctx context.Context, src infimount.Source) (storage.Handle, error) {
	switch src.Kind {
	case infimount.KindLocal:
		return localfs.New(src.Root)
	case infimount.KindS3:
		return s3fs.New(ctx, s3Config(src))
	case infimount.KindWebDAV:
		return webdavfs.New(webdavConfig(src))
	case infimount.KindAzureBlob:
		return azurefs.New(azureConfig(src))
	case infimount.KindGCS:
		return gcsfs.New(ctx, gcsConfig(src))
	default:
		return nil, errors.NewPath("registry.build", src.ID, errors.ErrUnsupportedKind).
			WithMessage("kind " + src.Kind.String())
	}
}

// validateSource checks a source before it is accepted into the registry.
// Unknown kinds pass validation so configurations written by newer builds
// round-trip losslessly; they fail at connection-build time instead.
func validateSource(src infimount.Source) error {
	if src.ID == "" {
		return errors.New("registry.validate", errors.ErrConfig).WithMessage("source id is required")
	}

	switch src.Kind {
	case infimount.KindLocal:
		return validateLocal(src)
	case infimount.KindS3:
		if s3Config(src).Bucket == "" {
			return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
				WithMessage("s3 source needs a bucket")
		}
	case infimount.KindWebDAV:
		cfg := webdavConfig(src)
		u, err := url.Parse(cfg.Endpoint)
		if cfg.Endpoint == "" || err != nil || u.Scheme == "" || u.Host == "" {
			return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
				WithMessage("webdav source needs a valid endpoint URL")
		}
	case infimount.KindAzureBlob:
		cfg := azureConfig(src)
		if cfg.Account == "" || cfg.Container == "" {
			return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
				WithMessage("azure source needs account and container")
		}
	case infimount.KindGCS:
		if gcsConfig(src).Bucket == "" {
			return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
				WithMessage("gcs source needs a bucket")
		}
	}
	return nil
}

func validateLocal(src infimount.Source) error {
	expanded, err := pathutil.ExpandHome(src.Root)
	if err != nil {
		return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
			WithMessage("cannot resolve home directory")
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
			WithMessage("local root " + expanded + " does not exist")
	}
	if !info.IsDir() {
		return errors.NewPath("registry.validate", src.ID, errors.ErrConfig).
			WithMessage("local root " + expanded + " is not a directory")
	}
	return nil
}

// s3Config derives the bucket and region from a "bucket@region" root.
func s3Config(src infimount.Source) s3fs.Config {
	bucket := src.Root
	region := ""
	if at := strings.Index(src.Root, "@"); at >= 0 {
		bucket = src.Root[:at]
		region = src.Root[at+1:]
	}

	cfg := s3fs.Config{
		Bucket:          override(src, "bucket", bucket),
		Region:          override(src, "region", region),
		Endpoint:        src.ConfigValue("endpoint"),
		AccessKeyID:     src.ConfigValue("access_key_id"),
		SecretAccessKey: src.ConfigValue("secret_access_key"),
		ForcePathStyle:  src.ConfigValue("force_path_style") == "true",
	}
	return cfg
}

func webdavConfig(src infimount.Source) webdavfs.Config {
	return webdavfs.Config{
		Endpoint: override(src, "endpoint", src.Root),
		Username: src.ConfigValue("username"),
		Password: src.ConfigValue("password"),
	}
}

// azureConfig derives the account and container from an "account/container"
// root.
func azureConfig(src infimount.Source) azurefs.Config {
	account := src.Root
	container := ""
	if slash := strings.Index(src.Root, "/"); slash >= 0 {
		account = src.Root[:slash]
		container = src.Root[slash+1:]
	}

	return azurefs.Config{
		Account:    override(src, "account", account),
		Container:  override(src, "container", container),
		AccountKey: src.ConfigValue("account_key"),
		Endpoint:   src.ConfigValue("endpoint"),
	}
}

func gcsConfig(src infimount.Source) gcsfs.Config {
	return gcsfs.Config{
		Bucket:          override(src, "bucket", src.Root),
		CredentialsFile: src.ConfigValue("credentials_file"),
		Anonymous:       src.ConfigValue("anonymous") == "true",
		Endpoint:        src.ConfigValue("endpoint"),
	}
}

// override prefers an explicit config entry over the root-derived value.
func override(src infimount.Source, key, fromRoot string) string {
	if v := src.ConfigValue(key); v != "" {
		return v
	}
	return fromRoot
}
