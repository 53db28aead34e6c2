package indexing_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
)

type fakeChunker struct{}

func (fakeChunker) Chunk(path string, content []byte) ([]collab.Chunk, error) {
	return []collab.Chunk{{Text: string(content), LineStart: 1, LineEnd: 1, Language: "go"}}, nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[i%f.dim] = 1

		out[i] = vec
	}

	return out, nil
}

func newDeps(files map[string]string) indexing.Deps {
	return indexing.Deps{
		Chunker:  fakeChunker{},
		Embedder: fakeEmbedder{dim: 4},
		ReadFile: func(path string) ([]byte, error) { return []byte(files[path]), nil },
		PointID: func(path string, chunkIndex int, content []byte) string {
			sum := sha256.Sum256(content)

			return fmt.Sprintf("%s:%d:%s", path, chunkIndex, hex.EncodeToString(sum[:4]))
		},
	}
}

func TestCoordinator_StartFullIndexThenIncremental(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, "default")
	fsys := indexerfs.NewReal()

	hnswStore := hnsw.New(fsys)
	idStore := idindex.New(fsys)
	ftsStore := fts.New(fsys)
	coord := indexing.New(fsys, hnswStore, idStore, ftsStore, zerolog.Nop())

	entry := cache.NewEntry(dir, time.Minute)

	files := map[string]string{"a.go": "package a", "b.go": "package b"}
	deps := newDeps(files)

	result, err := coord.Start(context.Background(), entry, l, deps, indexing.Params{Collection: "default", Files: []string{"a.go", "b.go"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "full", result.Stats.HNSWUpdate)
	require.Equal(t, 2, result.Stats.FilesProcessed)

	// A second session with one more file should go incremental.
	files["c.go"] = "package c"

	result, err = coord.Start(context.Background(), entry, l, deps, indexing.Params{Collection: "default", Files: []string{"a.go", "b.go", "c.go"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "incremental", result.Stats.HNSWUpdate)
}

func TestCoordinator_RejectsConcurrentStart(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, "default")
	fsys := indexerfs.NewReal()

	coord := indexing.New(fsys, hnsw.New(fsys), idindex.New(fsys), fts.New(fsys), zerolog.Nop())
	entry := cache.NewEntry(dir, time.Minute)

	coord2 := coord // same instance, simulate re-entry via goroutine below
	_ = coord2

	// Manually flip state to Running by starting a session whose ReadFile
	// blocks until released, then attempt a second Start concurrently.
	release := make(chan struct{})

	deps := indexing.Deps{
		Chunker:  fakeChunker{},
		Embedder: fakeEmbedder{dim: 2},
		ReadFile: func(path string) ([]byte, error) {
			<-release

			return []byte("x"), nil
		},
		PointID: func(path string, chunkIndex int, content []byte) string { return path },
	}

	done := make(chan struct{})

	go func() {
		_, _ = coord.Start(context.Background(), entry, l, deps, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)

		close(done)
	}()

	require.Eventually(t, func() bool { return coord.State() == indexing.Running }, time.Second, time.Millisecond)

	_, err := coord.Start(context.Background(), entry, l, deps, indexing.Params{Collection: "default", Files: []string{"b.go"}}, nil)
	require.Error(t, err)

	close(release)
	<-done
}
