// Package collab declares the capability interfaces for every external
// collaborator the daemon core treats as a black box (spec §1, §6, §9):
// the embedding provider, the source chunker, the git-topology differ, and
// the client-side progress renderer. The ANN and FTS backends are concrete
// packages (internal/store/hnsw, internal/store/fts), not interfaces here.
//
// The daemon receives implementations of these as plain values injected at
// startup - no deep inheritance, no duck typing, per the Design Notes.
package collab

import "context"

// Chunk is one chunker-produced span of a source file (spec §6).
type Chunk struct {
	Text      string
	LineStart int
	LineEnd   int
	Language  string
}

// Chunker splits file content into indexable chunks. Implemented elsewhere
// (e.g. a tree-sitter based chunker); out of scope here per spec §1.
type Chunker interface {
	Chunk(path string, content []byte) ([]Chunk, error)
}

// EmbeddingProvider turns text into dense vectors, typically via an HTTP
// call to an external embedding service. Out of scope per spec §1; may
// block on network I/O and its failures propagate as ExternalFailure.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// FileStatus reports the per-file state shown alongside an indexing
// progress update (spec §4.7).
type FileStatus struct {
	Path   string
	Status string // e.g. "processing", "done", "failed"
}

// ProgressFunc is the indexing/watch progress callback contract (spec
// §4.7). A call with total == 0 is a scrolling SETUP message; total > 0 is
// a progress update against that total.
type ProgressFunc func(current, total int, path, info string, concurrentFiles []FileStatus)

// BranchChange describes a git-topology transition (spec §4.8, §6).
type BranchChange struct {
	OldBranch string
	NewBranch string
	OldCommit string
	NewCommit string
}

// BranchChangeResult is GitTopology's answer: the files that changed and,
// when available, the merge-base commit used to compute them.
type BranchChangeResult struct {
	ChangedFiles []string
	MergeBase    string
}

// GitTopology analyzes a branch/commit transition to discover changed
// files. Spec §4.8: same-branch with differing commits MUST use commit
// comparison (`git diff --name-only old..new`); otherwise falls back to a
// branch-vs-branch diff.
type GitTopology interface {
	AnalyzeBranchChange(ctx context.Context, change BranchChange) (BranchChangeResult, error)
}

// ProgressRenderer is the client-side terminal progress UI contract (spec
// §6). Out of scope per spec §1 ("progress-rendering terminal UI"); the
// concrete renderer used by cmd/codeindex is a minimal line printer, not a
// full TUI.
type ProgressRenderer interface {
	HandleSetupMessage(info string)
	StartBottomDisplay()
	Update(current, total int, path, info string, concurrentFiles []FileStatus)
	Stop()
}
