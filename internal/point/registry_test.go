package point_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/fs/fstest"
	"github.com/localcode/indexer/internal/point"
)

func TestRegistry_LoadMissingRebuildsFromIndexDir(t *testing.T) {
	fake := fstest.New()

	a := point.NewLayout("/repo", "alpha")
	b := point.NewLayout("/repo", "beta")

	require.NoError(t, fake.MkdirAll(a.Dir(), 0o750))
	require.NoError(t, fake.MkdirAll(b.Dir(), 0o750))

	reg, err := point.LoadRegistry(fake, "/repo")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, reg.Collections)
}

func TestAddCollection_IsIdempotentAndSorted(t *testing.T) {
	fake := fstest.New()

	require.NoError(t, point.AddCollection(fake, "/repo", "zeta"))
	require.NoError(t, point.AddCollection(fake, "/repo", "alpha"))
	require.NoError(t, point.AddCollection(fake, "/repo", "zeta"))

	reg, err := point.LoadRegistry(fake, "/repo")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zeta"}, reg.Collections)
}

func TestRemoveCollection_DropsOnlyNamedEntry(t *testing.T) {
	fake := fstest.New()

	require.NoError(t, point.AddCollection(fake, "/repo", "alpha"))
	require.NoError(t, point.AddCollection(fake, "/repo", "beta"))
	require.NoError(t, point.RemoveCollection(fake, "/repo", "alpha"))

	reg, err := point.LoadRegistry(fake, "/repo")
	require.NoError(t, err)
	require.Equal(t, []string{"beta"}, reg.Collections)
}
