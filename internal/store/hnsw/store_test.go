package hnsw_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/hnsw"
)

func TestRebuildFromVectors_LoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	points := []point.Point{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0}},
		{ID: "c", Vector: []float32{0, 0, 1}},
	}

	require.NoError(t, s.RebuildFromVectors(l, points, 3, 16, 200, "cosine"))

	loaded, err := s.Load(l)
	require.NoError(t, err)

	defer loaded.Close()

	results, err := s.Query(loaded, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].PointID)

	meta, err := point.LoadMeta(indexerfs.NewReal(), l)
	require.NoError(t, err)
	require.NotEmpty(t, meta.HNSW.IndexRebuildUUID)
	require.Equal(t, 3, meta.HNSW.VectorCount)
}

func TestAddOrUpdateVector_MovesNearestNeighbor(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	points := []point.Point{{ID: "a", Vector: []float32{1, 0, 0}}}
	require.NoError(t, s.RebuildFromVectors(l, points, 3, 16, 200, "l2"))

	loaded, err := s.Load(l)
	require.NoError(t, err)

	defer loaded.Close()

	s.AddOrUpdateVector(loaded, "b", []float32{0, 1, 0})

	results, err := s.Query(loaded, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].PointID)
}

func TestRemoveVector_ExcludesFromQuery(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	points := []point.Point{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, s.RebuildFromVectors(l, points, 3, 16, 200, "l2"))

	loaded, err := s.Load(l)
	require.NoError(t, err)

	defer loaded.Close()

	s.RemoveVector(loaded, "a")

	results, err := s.Query(loaded, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEqual(t, "a", results[0].PointID)
}

func TestSaveIncrementalUpdate_NewUUIDPersists(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	points := []point.Point{{ID: "a", Vector: []float32{1, 0, 0}}}
	require.NoError(t, s.RebuildFromVectors(l, points, 3, 16, 200, "l2"))

	first, err := point.LoadMeta(indexerfs.NewReal(), l)
	require.NoError(t, err)

	loaded, err := s.Load(l)
	require.NoError(t, err)

	s.AddOrUpdateVector(loaded, "b", []float32{0, 1, 0})
	require.NoError(t, s.SaveIncrementalUpdate(l, loaded))
	require.NoError(t, loaded.Close())

	second, err := point.LoadMeta(indexerfs.NewReal(), l)
	require.NoError(t, err)
	require.NotEqual(t, first.HNSW.IndexRebuildUUID, second.HNSW.IndexRebuildUUID)
	require.Equal(t, 2, second.HNSW.VectorCount)

	reloaded, err := s.Load(l)
	require.NoError(t, err)

	defer reloaded.Close()

	results, err := s.Query(reloaded, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, "b", results[0].PointID)
}

func TestMarkStale_SetsFlag(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	points := []point.Point{{ID: "a", Vector: []float32{1, 0, 0}}}
	require.NoError(t, s.RebuildFromVectors(l, points, 3, 16, 200, "l2"))
	require.NoError(t, s.MarkStale(l))

	meta, err := point.LoadMeta(indexerfs.NewReal(), l)
	require.NoError(t, err)
	require.True(t, meta.HNSW.IsStale)
}

func TestLoad_MissingFileReturnsUnavailable(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := hnsw.New(indexerfs.NewReal())

	_, err := s.Load(l)
	require.ErrorIs(t, err, hnsw.ErrUnavailable)
}

func TestRebuildLock_Path(t *testing.T) {
	l := point.NewLayout("/tmp/proj", "default")
	require.Equal(t, filepath.Join("/tmp/proj", ".code-indexer", "index", "default", ".index_rebuild.lock"), l.RebuildLock())
}
