package client_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/client"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/indexing"
)

type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}

	return out, nil
}

type noopChunker struct{}

func (noopChunker) Chunk(_ string, content []byte) ([]collab.Chunk, error) {
	return []collab.Chunk{{Text: string(content), LineStart: 1, LineEnd: 1}}, nil
}

type noopGit struct{}

func (noopGit) AnalyzeBranchChange(context.Context, collab.BranchChange) (collab.BranchChangeResult, error) {
	return collab.BranchChangeResult{}, nil
}

func TestStandalone_IndexAndQueryWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0o644))

	deps := daemon.Deps{
		Embedder: noopEmbedder{},
		Chunker:  noopChunker{},
		Git:      noopGit{},
		PointID:  func(path string, i int, _ []byte) string { return path },
	}

	api := client.NewStandalone(indexerfs.NewReal(), deps, zerolog.Nop())
	defer api.Close()

	_, err := api.Index(context.Background(), dir, indexing.Params{Collection: "default", Files: []string{"a.go"}}, nil)
	require.NoError(t, err)

	result, err := api.Query(context.Background(), dir, "package a", 5, daemon.QueryFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)

	status, err := api.Status(dir)
	require.NoError(t, err)
	require.Equal(t, 1, status.Storage.CollectionCount)
}
