package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infimount/infimount"
)

func TestListStorageSchemas(t *testing.T) {
	schemas, err := ListStorageSchemas()
	require.NoError(t, err)
	require.Len(t, schemas, 5)

	byKind := map[infimount.SourceKind]KindSchema{}
	for _, s := range schemas {
		byKind[s.Kind] = s
	}

	// One schema per supported kind.
	for _, kind := range []infimount.SourceKind{
		infimount.KindLocal,
		infimount.KindS3,
		infimount.KindWebDAV,
		infimount.KindAzureBlob,
		infimount.KindGCS,
	} {
		assert.Contains(t, byKind, kind)
	}

	s3 := byKind[infimount.KindS3]
	fieldNames := map[string]FieldSchema{}
	for _, f := range s3.Fields {
		fieldNames[f.Name] = f
	}
	assert.True(t, fieldNames["bucket"].Required)
	assert.True(t, fieldNames["secret_access_key"].Secret)
	assert.False(t, fieldNames["region"].Required)

	dav := byKind[infimount.KindWebDAV]
	require.NotEmpty(t, dav.Fields)
	assert.Equal(t, "endpoint", dav.Fields[0].Name)
	assert.True(t, dav.Fields[0].Required)
}
