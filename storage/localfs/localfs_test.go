package localfs

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infimount/infimount/errors"
)

func seed(t *testing.T, fsys billy.Filesystem, path, content string) {
	t.Helper()
	f, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, h *FS, path string) string {
	t.Helper()
	r, err := h.Reader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestNewValidatesRoot(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("root is a file", func(t *testing.T) {
		dir := t.TempDir()
		fsys, err := New(dir)
		require.NoError(t, err)

		w, err := fsys.Writer(context.Background(), "f.txt")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = New(filepath.Join(dir, "f.txt"))
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("valid root", func(t *testing.T) {
		fsys, err := New(t.TempDir())
		require.NoError(t, err)
		require.NotNil(t, fsys)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	mem := memfs.New()
	seed(t, mem, "a.txt", "a")
	seed(t, mem, "docs/b.txt", "b")
	seed(t, mem, "docs/sub/c.txt", "c")
	h := NewFromBilly(mem)

	t.Run("root", func(t *testing.T) {
		entries, err := h.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "docs/"}, entries)
	})

	t.Run("subdirectory", func(t *testing.T) {
		entries, err := h.List(ctx, "docs/")
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/b.txt", "docs/sub/"}, entries)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := h.List(ctx, "nope/")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	mem := memfs.New()
	seed(t, mem, "docs/b.txt", "hello")
	h := NewFromBilly(mem)

	t.Run("file", func(t *testing.T) {
		md, err := h.Stat(ctx, "docs/b.txt")
		require.NoError(t, err)
		assert.False(t, md.IsDir)
		assert.Equal(t, int64(5), md.Size)
	})

	t.Run("directory", func(t *testing.T) {
		md, err := h.Stat(ctx, "docs/")
		require.NoError(t, err)
		assert.True(t, md.IsDir)
		assert.Zero(t, md.Size)
	})

	t.Run("root", func(t *testing.T) {
		md, err := h.Stat(ctx, "")
		require.NoError(t, err)
		assert.True(t, md.IsDir)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := h.Stat(ctx, "nope.txt")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	h := NewFromBilly(memfs.New())

	w, err := h.Writer(ctx, "deep/nested/f.txt")
	require.NoError(t, err)
	_, err = io.Copy(w, strings.NewReader("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "payload", readAll(t, h, "deep/nested/f.txt"))

	// Writing again truncates.
	w, err = h.Writer(ctx, "deep/nested/f.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("v2"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "v2", readAll(t, h, "deep/nested/f.txt"))
}

func TestReaderMissing(t *testing.T) {
	h := NewFromBilly(memfs.New())
	_, err := h.Reader(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	mem := memfs.New()
	seed(t, mem, "src.txt", "data")
	h := NewFromBilly(mem)

	require.NoError(t, h.Copy(ctx, "src.txt", "dir/dst.txt"))
	assert.Equal(t, "data", readAll(t, h, "dir/dst.txt"))
	assert.Equal(t, "data", readAll(t, h, "src.txt"))
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	mem := memfs.New()
	seed(t, mem, "old/f.txt", "data")
	h := NewFromBilly(mem)

	require.NoError(t, h.Rename(ctx, "old/f.txt", "new/f.txt"))

	ok, err := h.Exists(ctx, "old/f.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "data", readAll(t, h, "new/f.txt"))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		mem := memfs.New()
		seed(t, mem, "f.txt", "data")
		h := NewFromBilly(mem)

		require.NoError(t, h.Remove(ctx, "f.txt"))
		ok, err := h.Exists(ctx, "f.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("directory tree", func(t *testing.T) {
		mem := memfs.New()
		seed(t, mem, "dir/a.txt", "a")
		seed(t, mem, "dir/sub/b.txt", "b")
		seed(t, mem, "keep.txt", "k")
		h := NewFromBilly(mem)

		require.NoError(t, h.Remove(ctx, "dir/"))

		ok, err := h.Exists(ctx, "dir/")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = h.Exists(ctx, "keep.txt")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing path", func(t *testing.T) {
		h := NewFromBilly(memfs.New())
		err := h.Remove(ctx, "nope.txt")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCreateDirAndExists(t *testing.T) {
	ctx := context.Background()
	h := NewFromBilly(memfs.New())

	require.NoError(t, h.CreateDir(ctx, "a/b/c/"))

	ok, err := h.Exists(ctx, "a/b/c/")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Exists(ctx, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
