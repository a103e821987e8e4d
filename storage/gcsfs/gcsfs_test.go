package gcsfs

import (
	"context"
	"net/http"
	"testing"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/infimount/infimount/errors"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Anonymous: true})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestKeyMapping(t *testing.T) {
	assert.Equal(t, "a/b.txt", fileKey("/a/b.txt"))
	assert.Equal(t, "", dirKey(""))
	assert.Equal(t, "docs/", dirKey("docs/"))
}

func TestTranslate(t *testing.T) {
	t.Run("object missing", func(t *testing.T) {
		err := translate("gcs.read", "a.txt", gcs.ErrObjectNotExist)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("http 404", func(t *testing.T) {
		err := translate("gcs.stat", "a.txt", &googleapi.Error{Code: http.StatusNotFound})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("http 403", func(t *testing.T) {
		err := translate("gcs.list", "dir/", &googleapi.Error{Code: http.StatusForbidden})
		assert.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))
	})

	t.Run("unclassified", func(t *testing.T) {
		err := translate("gcs.list", "dir/", assert.AnError)
		assert.Equal(t, errors.CodeUnknown, errors.CodeOf(err))
	})
}
