package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
	"github.com/localcode/indexer/internal/watch"
)

type fakeChunker struct{}

func (fakeChunker) Chunk(path string, content []byte) ([]collab.Chunk, error) {
	return []collab.Chunk{{Text: string(content), LineStart: 1, LineEnd: 1, Language: "go"}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}

	return out, nil
}

func newCoordinator(t *testing.T, dir string) (*watch.Coordinator, point.Layout) {
	t.Helper()

	fsys := indexerfs.NewReal()
	l := point.NewLayout(dir, "default")

	deps := watch.Deps{
		ReadFile: os.ReadFile,
		HNSW:     hnsw.New(fsys),
		IDIndex:  idindex.New(fsys),
		FTS:      fts.New(fsys),
		Git:      collab.NewGitTopology(dir),
		Chunker:  fakeChunker{},
		Embedder: fakeEmbedder{},
		PointID:  func(path string, chunkIndex int, content []byte) string { return path },
	}

	return watch.New(deps, zerolog.Nop()), l
}

func TestCoordinator_StartRejectsDuplicateWatch(t *testing.T) {
	dir := t.TempDir()
	coord, l := newCoordinator(t, dir)
	entry := cache.NewEntry(dir, time.Minute)

	require.NoError(t, coord.Start(context.Background(), dir, l, entry))
	defer coord.Stop()

	err := coord.Start(context.Background(), dir, l, entry)
	require.Error(t, err)
}

func TestCoordinator_WriteEventUpdatesFTSIndex(t *testing.T) {
	dir := t.TempDir()
	fsys := indexerfs.NewReal()
	ftsStore := fts.New(fsys)
	l := point.NewLayout(dir, "default")

	require.NoError(t, ftsStore.RebuildFromDocuments(l, []fts.Document{}))

	entry := cache.NewEntry(dir, time.Minute)
	require.NoError(t, entry.Write(func(s *cache.Stores) error {
		searcher, err := ftsStore.Open(l)
		if err != nil {
			return err
		}

		s.FTS = searcher

		return nil
	}))

	coord, _ := newCoordinator(t, dir)
	require.NoError(t, coord.Start(context.Background(), dir, l, entry))

	defer coord.Stop()

	target := filepath.Join(dir, "hello.go")
	require.NoError(t, os.WriteFile(target, []byte("package hello\n\nfunc Hello() {}\n"), 0o644))

	require.Eventually(t, func() bool {
		return coord.Status().Stats.FilesAdded+coord.Status().Stats.FilesUpdated > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinator_WriteEventUpdatesIDIndex(t *testing.T) {
	dir := t.TempDir()
	fsys := indexerfs.NewReal()
	idStore := idindex.New(fsys)
	l := point.NewLayout(dir, "default")

	require.NoError(t, idStore.Rebuild(l, nil))

	entry := cache.NewEntry(dir, time.Minute)
	require.NoError(t, entry.Write(func(s *cache.Stores) error {
		loaded, err := idStore.Load(l)
		if err != nil {
			return err
		}

		s.IDIndex = loaded

		return nil
	}))

	coord, _ := newCoordinator(t, dir)
	require.NoError(t, coord.Start(context.Background(), dir, l, entry))

	target := filepath.Join(dir, "hello.go")
	require.NoError(t, os.WriteFile(target, []byte("package hello\n\nfunc Hello() {}\n"), 0o644))

	require.Eventually(t, func() bool {
		return coord.Status().Stats.FilesAdded+coord.Status().Stats.FilesUpdated > 0
	}, 2*time.Second, 10*time.Millisecond)

	coord.Stop()

	require.NoError(t, entry.Read(func(s cache.Stores) error {
		path, ok := s.IDIndex.Path(target)
		require.True(t, ok, "watched point should be resolvable through the id index")
		require.Equal(t, target, path)

		return nil
	}))

	require.NoError(t, os.Remove(target))

	coord2, _ := newCoordinator(t, dir)
	require.NoError(t, coord2.Start(context.Background(), dir, l, entry))

	require.Eventually(t, func() bool {
		return coord2.Status().Stats.FilesDeleted > 0
	}, 2*time.Second, 10*time.Millisecond)

	coord2.Stop()

	require.NoError(t, entry.Read(func(s cache.Stores) error {
		require.False(t, s.IDIndex.Has(target), "deleted file's point id should be dropped from the id index")

		return nil
	}))
}

func TestCoordinator_StopIsIdempotentWhenNotRunning(t *testing.T) {
	dir := t.TempDir()
	coord, _ := newCoordinator(t, dir)

	status := coord.Stop()
	require.False(t, status.Running)
}
