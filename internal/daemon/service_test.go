package daemon_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/store/fts"
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

type fakeGit struct{}

func (fakeGit) AnalyzeBranchChange(context.Context, collab.BranchChange) (collab.BranchChangeResult, error) {
	return collab.BranchChangeResult{}, nil
}

func pointID(path string, chunkIndex int, content []byte) string {
	sum := sha256.Sum256(content)

	return fmt.Sprintf("%s:%d:%s", path, chunkIndex, hex.EncodeToString(sum[:4]))
}

func newService(t *testing.T, files map[string]string) (*daemon.Service, string) {
	t.Helper()

	dir := t.TempDir()

	for name, content := range files {
		writeFile(t, dir, name, content)
	}

	deps := daemon.Deps{
		Embedder: fakeEmbedder{dim: 4},
		Chunker:  fakeChunker{},
		Git:      fakeGit{},
		PointID:  pointID,
	}

	return daemon.New(indexerfs.NewReal(), deps, time.Minute, zerolog.Nop()), dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestService_IndexThenQuery(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a", "b.go": "package b"})

	result, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go", "b.go"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)

	out, err := svc.Query(context.Background(), dir, "package a", 5, daemon.QueryFilters{})
	require.NoError(t, err)
	require.Equal(t, "hnsw", out.Timing.Path)
	require.NotEmpty(t, out.Results)
}

func TestService_QueryFTS(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a\nfunc Hello() {}\n"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	matches, err := svc.QueryFTS(dir, "Hello", daemon.QueryFilters{}, fts.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestService_QueryTemporal_AllTimeRange(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	out, err := svc.QueryTemporal(context.Background(), dir, "package a", "all", 5, daemon.QueryFilters{})
	require.NoError(t, err)
	require.NotNil(t, out.Results)
}

func TestService_QueryTemporal_InvalidRangeErrors(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.QueryTemporal(context.Background(), dir, "x", "not-a-range", 5, daemon.QueryFilters{})
	require.Error(t, err)
}

func TestService_CleanRemovesVectorsKeepsFTS(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a\nfunc Hello() {}\n"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Clean(dir, daemon.CleanParams{}))

	out, err := svc.Query(context.Background(), dir, "package a", 5, daemon.QueryFilters{})
	require.NoError(t, err)
	require.Equal(t, "rebuild", out.Timing.Path)

	matches, err := svc.QueryFTS(dir, "Hello", daemon.QueryFilters{}, fts.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestService_CleanDataRemovesEverything(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.CleanData(dir, daemon.CleanParams{}))

	status, err := svc.Status(dir)
	require.NoError(t, err)
	require.Equal(t, 0, status.Storage.CollectionCount)
}

func TestService_StatusReportsCacheAndIndexing(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), dir, "package a", 5, daemon.QueryFilters{})
	require.NoError(t, err)

	status, err := svc.Status(dir)
	require.NoError(t, err)
	require.True(t, status.Cache.Loaded)
	require.Equal(t, 1, status.Storage.CollectionCount)
	require.False(t, status.Indexing.Running)
}

func TestService_ClearCacheDropsEntry(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), dir, "package a", 5, daemon.QueryFilters{})
	require.NoError(t, err)

	svc.ClearCache()

	status, err := svc.Status(dir)
	require.NoError(t, err)
	require.False(t, status.Cache.Loaded)
}

func TestService_WatchStartStopStatus(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.WatchStart(context.Background(), dir, "default"))
	require.True(t, svc.WatchRunning())

	status := svc.WatchStatus()
	require.True(t, status.Running)
	require.Equal(t, dir, status.Project)

	stopped := svc.WatchStop()
	require.Equal(t, dir, stopped.Project)
	require.False(t, svc.WatchRunning())
}

func TestService_ShutdownStopsWatchAndClearsCache(t *testing.T) {
	svc, dir := newService(t, map[string]string{"a.go": "package a"})

	_, err := svc.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.WatchStart(context.Background(), dir, "default"))

	svc.Shutdown()

	require.False(t, svc.WatchRunning())

	status, err := svc.Status(dir)
	require.NoError(t, err)
	require.False(t, status.Cache.Loaded)
}
