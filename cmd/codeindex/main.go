package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/client"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/config"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/fs"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx := context.Background()

	self, err := os.Executable()
	if err != nil {
		self = args[0]
	}

	daemonBinary := filepath.Join(filepath.Dir(self), "codeindexd")

	resolveAPI := func() (client.API, error) {
		return connect(ctx, daemonBinary)
	}

	commands := newCommands(resolveAPI)

	return dispatch(ctx, commands, args[1:])
}

// connect implements spec §4.11's fallback chain: dial an existing
// daemon, spawn one and retry with backoff, or fall back to an in-process
// Standalone run with a visible notice - never a silent, unexplained
// slowdown.
func connect(ctx context.Context, daemonBinary string) (client.API, error) {
	projectRoot, err := config.FindProjectRoot(".")
	if err != nil {
		projectRoot = "."
	}

	c, err := client.Dial(ctx, projectRoot, daemonBinary)
	if err == nil {
		return c, nil
	}

	fmt.Fprintln(os.Stderr, client.StandaloneNotice)

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "codeindex").Logger()

	deps := daemon.Deps{
		Embedder: collab.UnconfiguredEmbedder{},
		Chunker:  collab.UnconfiguredChunker{},
		Git:      collab.NewGitTopology(projectRoot),
		PointID:  defaultPointID,
	}

	return client.NewStandalone(fs.NewReal(), deps, log), nil
}
