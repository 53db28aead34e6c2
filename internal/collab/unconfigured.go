package collab

import (
	"context"
	"fmt"

	"github.com/localcode/indexer/internal/xerrors"
)

// UnconfiguredEmbedder and UnconfiguredChunker are placeholders for the
// real embedding-service client and tree-sitter chunker spec §1/§4
// deliberately leaves external (see SPEC_FULL.md §4): every call fails
// with ErrExternalFailure / ErrUnavailable rather than silently
// fabricating vectors or chunks, so wiring a real implementation is a
// visible gap, not a hidden one.
type UnconfiguredEmbedder struct{}

func (UnconfiguredEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, xerrors.Wrap(fmt.Errorf("%w: no EmbeddingProvider configured", xerrors.ErrExternalFailure))
}

type UnconfiguredChunker struct{}

func (UnconfiguredChunker) Chunk(_ string, _ []byte) ([]Chunk, error) {
	return nil, xerrors.Wrap(fmt.Errorf("%w: no Chunker configured", xerrors.ErrUnavailable))
}

var (
	_ EmbeddingProvider = UnconfiguredEmbedder{}
	_ Chunker           = UnconfiguredChunker{}
)
