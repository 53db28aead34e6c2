package fts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
)

func TestRebuildFromDocuments_OpenAndSearch(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := fts.New(indexerfs.NewReal())

	docs := []fts.Document{
		{Path: "main.go", Text: "func main() {\n\tfmt.Println(\"hello\")\n}", Language: "go"},
		{Path: "util.py", Text: "def hello():\n    print('hi')\n", Language: "python"},
	}
	require.NoError(t, s.RebuildFromDocuments(l, docs))

	searcher, err := s.Open(l)
	require.NoError(t, err)

	defer searcher.Close()

	matches, err := s.Search(searcher, "hello", fts.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	meta, err := point.LoadMeta(indexerfs.NewReal(), l)
	require.NoError(t, err)
	require.Equal(t, 2, meta.FTS.DocumentCount)
	require.NotEmpty(t, meta.FTS.IndexRebuildUUID)
}

func TestSearch_SnippetLinesZeroSuppressesSnippet(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := fts.New(indexerfs.NewReal())

	docs := []fts.Document{
		{Path: "a.go", Text: "line one\nneedle here\nline three", Language: "go"},
	}
	require.NoError(t, s.RebuildFromDocuments(l, docs))

	searcher, err := s.Open(l)
	require.NoError(t, err)

	defer searcher.Close()

	matches, err := s.Search(searcher, "needle", fts.SearchOptions{Limit: 10, SnippetLines: 0})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		require.Empty(t, m.Snippet)
		require.Equal(t, 2, m.Line)
	}
}

func TestSearch_ExcludeLanguagesFiltersHits(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := fts.New(indexerfs.NewReal())

	docs := []fts.Document{
		{Path: "main.go", Text: "needle in go", Language: "go"},
		{Path: "util.py", Text: "needle in python", Language: "python"},
	}
	require.NoError(t, s.RebuildFromDocuments(l, docs))

	searcher, err := s.Open(l)
	require.NoError(t, err)

	defer searcher.Close()

	matches, err := s.Search(searcher, "needle", fts.SearchOptions{Limit: 10, ExcludeLanguages: []string{"python"}})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		require.Equal(t, "main.go", m.Path)
	}

	matches, err = s.Search(searcher, "needle", fts.SearchOptions{
		Limit:            10,
		Languages:        []string{"go", "python"},
		ExcludeLanguages: []string{"go"},
	})
	require.NoError(t, err)

	for _, m := range matches {
		require.Equal(t, "util.py", m.Path)
	}
}

func TestOpen_MissingDirectoryReturnsUnavailable(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := fts.New(indexerfs.NewReal())

	_, err := s.Open(l)
	require.ErrorIs(t, err, fts.ErrUnavailable)
}

func TestIncrementalAddAndDelete(t *testing.T) {
	dir := t.TempDir()
	l := point.NewLayout(dir, point.DefaultCollection)
	s := fts.New(indexerfs.NewReal())

	require.NoError(t, s.RebuildFromDocuments(l, []fts.Document{{Path: "a.go", Text: "alpha", Language: "go"}}))

	searcher, err := s.Open(l)
	require.NoError(t, err)

	defer searcher.Close()

	require.NoError(t, s.IncrementalAdd(searcher, fts.Document{Path: "b.go", Text: "bravo charlie", Language: "go"}))

	matches, err := s.Search(searcher, "bravo", fts.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	require.NoError(t, s.IncrementalDelete(searcher, "b.go"))
}
