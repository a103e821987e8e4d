package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
)

type memStore struct {
	saved [][]infimount.Source
}

func (m *memStore) LoadSources() ([]infimount.Source, error) { return nil, nil }

func (m *memStore) SaveSources(sources []infimount.Source) error {
	snapshot := make([]infimount.Source, len(sources))
	copy(snapshot, sources)
	m.saved = append(m.saved, snapshot)
	return nil
}

func localSource(t *testing.T, id string) infimount.Source {
	t.Helper()
	return infimount.Source{
		ID:   id,
		Name: "Local " + id,
		Kind: infimount.KindLocal,
		Root: t.TempDir(),
	}
}

func TestAddListRemoveSource(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	reg := New(nil, WithStore(store))

	src := localSource(t, "docs")
	require.NoError(t, reg.AddSource(ctx, src))

	sources := reg.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "docs", sources[0].ID)

	require.NoError(t, reg.RemoveSource(ctx, "docs"))
	assert.Empty(t, reg.ListSources())

	// Removing an unknown id is a no-op.
	require.NoError(t, reg.RemoveSource(ctx, "ghost"))

	// Every mutation persisted the full set.
	require.Len(t, store.saved, 3)
	assert.Len(t, store.saved[0], 1)
	assert.Empty(t, store.saved[1])
}

func TestAddSourceValidationFailureDoesNotInsert(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	reg := New(nil, WithStore(store))

	err := reg.AddSource(ctx, infimount.Source{
		ID:   "bad",
		Kind: infimount.KindLocal,
		Root: "/definitely/not/a/real/root",
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Empty(t, reg.ListSources())
	assert.Empty(t, store.saved)
}

func TestAddSourceRequiresID(t *testing.T) {
	err := New(nil).AddSource(context.Background(), infimount.Source{
		Kind: infimount.KindLocal,
		Root: t.TempDir(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestDuplicateIDOverwrites(t *testing.T) {
	ctx := context.Background()
	reg := New(nil)

	first := localSource(t, "dup")
	second := localSource(t, "dup")
	second.Name = "Replacement"

	require.NoError(t, reg.AddSource(ctx, first))
	require.NoError(t, reg.AddSource(ctx, second))

	sources := reg.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "Replacement", sources[0].Name)
}

func TestReplaceSources(t *testing.T) {
	ctx := context.Background()
	reg := New([]infimount.Source{localSource(t, "old")})

	a := localSource(t, "a")
	b := localSource(t, "b")
	bDup := localSource(t, "b")
	bDup.Name = "Last write wins"

	require.NoError(t, reg.ReplaceSources(ctx, []infimount.Source{a, b, bDup}))

	byID := map[string]infimount.Source{}
	for _, s := range reg.ListSources() {
		byID[s.ID] = s
	}
	require.Len(t, byID, 2)
	assert.Contains(t, byID, "a")
	assert.Equal(t, "Last write wins", byID["b"].Name)
}

func TestReplaceSourcesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	existing := localSource(t, "keep")
	reg := New([]infimount.Source{existing})

	bad := infimount.Source{ID: "bad", Kind: infimount.KindLocal, Root: "/nope/nope"}
	err := reg.ReplaceSources(ctx, []infimount.Source{localSource(t, "ok"), bad})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	sources := reg.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "keep", sources[0].ID)
}

func TestGetOperatorBuildsAndCaches(t *testing.T) {
	ctx := context.Background()
	reg := New([]infimount.Source{localSource(t, "docs")})

	h1, err := reg.GetOperator(ctx, "docs")
	require.NoError(t, err)

	h2, err := reg.GetOperator(ctx, "docs")
	require.NoError(t, err)
	assert.Same(t, h1, h2)
}

func TestGetOperatorUnknownID(t *testing.T) {
	_, err := New(nil).GetOperator(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSourceNotFound))
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestMutationInvalidatesCachedHandle(t *testing.T) {
	ctx := context.Background()
	reg := New(nil)

	src := localSource(t, "docs")
	require.NoError(t, reg.AddSource(ctx, src))

	h1, err := reg.GetOperator(ctx, "docs")
	require.NoError(t, err)

	updated := src
	updated.Root = t.TempDir()
	require.NoError(t, reg.UpdateSource(ctx, updated))

	h2, err := reg.GetOperator(ctx, "docs")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestUnknownKindRoundTripsButCannotBuild(t *testing.T) {
	ctx := context.Background()
	future := infimount.Source{ID: "ipfs1", Name: "Future", Kind: "ipfs", Root: "QmHash"}

	reg := New(nil)
	require.NoError(t, reg.AddSource(ctx, future))

	sources := reg.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, infimount.SourceKind("ipfs"), sources[0].Kind)

	_, err := reg.GetOperator(ctx, "ipfs1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedKind))
	assert.Equal(t, errors.CodeConfig, errors.CodeOf(err))
}

func TestVerifySource(t *testing.T) {
	ctx := context.Background()
	reg := New(nil)

	t.Run("valid local source", func(t *testing.T) {
		require.NoError(t, reg.VerifySource(ctx, localSource(t, "probe")))
		// Verification never touches the registry state.
		assert.Empty(t, reg.ListSources())
	})

	t.Run("invalid local source", func(t *testing.T) {
		err := reg.VerifySource(ctx, infimount.Source{
			ID:   "probe",
			Kind: infimount.KindLocal,
			Root: "/missing/root",
		})
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})
}
