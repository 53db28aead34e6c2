// Package fts implements FTSStore (spec §4.4): a directory-based full-text
// index wrapping github.com/blevesearch/bleve/v2, with the same
// build-to-temp-then-swap discipline as the other stores, driven through
// [rebuild.Rebuilder] for full rebuilds.
package fts

// Document is one file's full-text content submitted for indexing.
type Document struct {
	Path     string
	Text     string
	Language string
	Lines    []string // Not read by this package; snippets are cut from Text.
}

// Match is one full-text hit.
type Match struct {
	Path      string
	Line      int
	Column    int
	MatchText string
	Snippet   string
}

// SearchOptions controls a FTSStore search (spec §4.4).
type SearchOptions struct {
	Limit            int
	Regex            bool
	Languages        []string
	ExcludeLanguages []string
	PathFilters      []string
	ExcludePaths     []string
	EditDistance     int
	CaseSensitive    bool
	SnippetLines     int
}
