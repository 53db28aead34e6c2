// Package main implements codeindexd, the daemon entrypoint: one process
// per project, bound to that project's Unix socket, wiring
// [internal/daemon.Service] to [internal/rpcserver.Server] and running
// [internal/cache.EvictionThread] alongside it (spec §4.6/§4.9/§4.10).
package main

import (
	"context"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/config"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/rpcserver"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	fset := flag.NewFlagSet("codeindexd", flag.ContinueOnError)
	project := fset.String("project", ".", "project root to bind the daemon to")
	verbose := fset.BoolP("verbose", "v", false, "enable debug logging")

	if err := fset.Parse(args[1:]); err != nil {
		return 1
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}

	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("component", "codeindexd").Logger()

	cfg, err := config.Load(*project)
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}

	if !cfg.Daemon.Enabled {
		log.Info().Msg("daemon disabled by config; exiting")
		return 0
	}

	deps := daemon.Deps{
		Embedder: collab.UnconfiguredEmbedder{},
		Chunker:  collab.UnconfiguredChunker{},
		Git:      collab.NewGitTopology(*project),
		PointID:  defaultPointID,
	}

	svc := daemon.New(fs.NewReal(), deps, cfg.Daemon.TTL(), log)

	srv := rpcserver.New(*project, svc, cfg.Daemon.MaxConcurrentConnections, log)
	if err := srv.Listen(); err != nil {
		log.Error().Err(err).Msg("bind socket")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eviction := cache.NewEvictionThread(svc.CacheManager(), cfg.Daemon.EvictionCheckInterval(), log)

	if cfg.Daemon.AutoShutdownOnIdle {
		// Auto-shutdown must not fire while a watch or indexing session is
		// running - evicting the cache out from under an active watch would
		// strand its mutation target (DESIGN.md "Open Questions resolved").
		eviction.AutoShutdownOnIdle = func() {
			if svc.WatchRunning() || svc.IndexingRunning() {
				return
			}

			log.Info().Msg("idle with empty cache; shutting down")
			cancel()
		}
	}

	go eviction.Run(ctx)

	log.Info().Str("project", *project).Msg("codeindexd listening")

	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("serve")
		return 1
	}

	<-srv.Done()

	return 0
}
