package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/store/fts"
)

// printJSON prints a command's payload as indented JSON to stdout, leaving
// interpretation to whatever consumes codeindex's output (a human, or an
// agent's tool wrapper). query-fts and query-hybrid print text lines via
// formatFTSMatches/formatHybrid instead, and commands without a result
// payload print nothing.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// formatHybrid renders query_hybrid's merged result set, one row per hit,
// labelled with the Kind tag the daemon set on it (semantic or FTS), then
// its score and path. It does not inspect result shape.
func formatHybrid(result daemon.HybridResult) {
	for _, item := range result.Results {
		fmt.Printf("%-9s %7.4f  %s\n", item.Kind, item.Score, item.Path)
	}
}

func formatFTSMatches(matches []fts.Match) {
	for _, m := range matches {
		fmt.Printf("%s:%d:%d: %s\n", m.Path, m.Line, m.Column, m.Snippet)
	}
}
