package idindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/idindex"
)

func TestRebuild_LoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := idindex.New(indexerfs.NewReal())

	points := []point.Point{
		{ID: "a", Path: "main.go"},
		{ID: "b", Path: "util/helpers.go"},
	}
	require.NoError(t, s.Rebuild(l, points))

	loaded, err := s.Load(l)
	require.NoError(t, err)

	defer loaded.Close()

	p, ok := loaded.Path("a")
	require.True(t, ok)
	require.Equal(t, "main.go", p)

	p, ok = loaded.Path("b")
	require.True(t, ok)
	require.Equal(t, "util/helpers.go", p)

	_, ok = loaded.Path("missing")
	require.False(t, ok)
}

func TestRebuild_DeletionRequiresFullRebuild(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := idindex.New(indexerfs.NewReal())

	require.NoError(t, s.Rebuild(l, []point.Point{{ID: "a", Path: "a.go"}, {ID: "b", Path: "b.go"}}))
	require.NoError(t, s.Rebuild(l, []point.Point{{ID: "b", Path: "b.go"}}))

	loaded, err := s.Load(l)
	require.NoError(t, err)

	defer loaded.Close()

	_, ok := loaded.Path("a")
	require.False(t, ok)

	p, ok := loaded.Path("b")
	require.True(t, ok)
	require.Equal(t, "b.go", p)
}

func TestLoad_MissingFileReturnsUnavailable(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := idindex.New(indexerfs.NewReal())

	_, err := s.Load(l)
	require.ErrorIs(t, err, idindex.ErrUnavailable)
}
