package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/registry"
	"github.com/infimount/infimount/transfer"
)

type testEnv struct {
	server  *httptest.Server
	srcRoot string
	dstRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	reg := registry.New([]infimount.Source{
		{ID: "src", Name: "Source", Kind: infimount.KindLocal, Root: srcRoot},
		{ID: "dst", Name: "Destination", Kind: infimount.KindLocal, Root: dstRoot},
	})
	srv := NewServer(reg, transfer.NewEngine(), nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, srcRoot: srcRoot, dstRoot: dstRoot}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListSchemas(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/schemas", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	schemas := decodeBody[[]map[string]any](t, resp)
	assert.Len(t, schemas, 5)
}

func TestSourceLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sources", infimount.Source{
		ID: "extra", Name: "Extra", Kind: infimount.KindLocal, Root: t.TempDir(),
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sources := decodeBody[[]infimount.Source](t, resp)
	assert.Len(t, sources, 3)

	resp = env.do(t, http.MethodDelete, "/api/v1/sources/extra", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/sources", nil)
	sources = decodeBody[[]infimount.Source](t, resp)
	assert.Len(t, sources, 2)
}

func TestAddSourceValidationError(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sources", infimount.Source{
		ID: "bad", Kind: infimount.KindLocal, Root: "/does/not/exist",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	wire := decodeBody[errors.Wire](t, resp)
	assert.Equal(t, errors.CodeConfig, wire.Code)
	assert.NotEmpty(t, wire.Message)
}

func TestFileRoundTripOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPut,
		env.server.URL+"/api/v1/sources/src/file?path=docs/hello.txt",
		bytes.NewReader([]byte("hello over http")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/sources/src/file?path=docs/hello.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello over http", buf.String())

	resp = env.do(t, http.MethodGet, "/api/v1/sources/src/entries?path=docs/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]infimount.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello.txt", entries[0].Name)
	assert.Equal(t, uint64(15), entries[0].Size)
}

func TestStatMissingReturns404(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/sources/src/stat?path=nope.txt", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	wire := decodeBody[errors.Wire](t, resp)
	assert.Equal(t, errors.CodeNotFound, wire.Code)
}

func TestUnknownSourceReturns404(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/sources/ghost/entries?path=", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransferAcrossSources(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.srcRoot, "f.txt"), []byte("payload"), 0o644))

	resp := env.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{
		"from_source_id":  "src",
		"to_source_id":    "dst",
		"paths":           []string{"f.txt"},
		"target_dir":      "in",
		"operation":       "move",
		"conflict_policy": "fail",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(env.dstRoot, "in", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(filepath.Join(env.srcRoot, "f.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransferConflictReturns409(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.srcRoot, "f.txt"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dstRoot, "f.txt"), []byte("old"), 0o644))

	resp := env.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{
		"from_source_id":  "src",
		"to_source_id":    "dst",
		"paths":           []string{"f.txt"},
		"target_dir":      "",
		"operation":       "copy",
		"conflict_policy": "fail",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	wire := decodeBody[errors.Wire](t, resp)
	assert.Equal(t, errors.CodeAlreadyExists, wire.Code)
}

func TestTransferInvalidEnums(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{
		"from_source_id": "src", "to_source_id": "dst",
		"operation": "beam", "conflict_policy": "fail",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{
		"from_source_id": "src", "to_source_id": "dst",
		"operation": "copy", "conflict_policy": "maybe",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadLocalPaths(t *testing.T) {
	env := newTestEnv(t)

	ext := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ext, "drop.txt"), []byte("dropped"), 0o644))

	resp := env.do(t, http.MethodPost, "/api/v1/sources/dst/upload", map[string]any{
		"paths":      []string{filepath.Join(ext, "drop.txt")},
		"target_dir": "incoming",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(env.dstRoot, "incoming", "drop.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dropped", string(data))
}

func TestVerifySourceEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sources/verify", infimount.Source{
		ID: "probe", Kind: infimount.KindLocal, Root: t.TempDir(),
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/sources/verify", infimount.Source{
		ID: "probe", Kind: infimount.KindLocal, Root: "/missing",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
