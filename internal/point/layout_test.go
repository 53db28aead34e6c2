package point_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/point"
)

func TestLayout_PathsAreUnderCollectionDir(t *testing.T) {
	l := point.NewLayout("/repo", "default")

	require.Equal(t, filepath.Join("/repo", ".code-indexer", "index", "default"), l.Dir())
	require.Equal(t, filepath.Join(l.Dir(), "hnsw_index.bin"), l.HNSWFile())
	require.Equal(t, filepath.Join(l.Dir(), "id_index.bin"), l.IDIndexFile())
	require.Equal(t, filepath.Join(l.Dir(), "tantivy_index"), l.FTSDir())
	require.Equal(t, filepath.Join(l.Dir(), "collection_meta.json"), l.MetaFile())
	require.Equal(t, filepath.Join(l.Dir(), ".index_rebuild.lock"), l.RebuildLock())
}

func TestSocketPath_IsProjectScoped(t *testing.T) {
	require.Equal(t, filepath.Join("/repo", ".code-indexer", "daemon.sock"), point.SocketPath("/repo"))
}
