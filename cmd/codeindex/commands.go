package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/localcode/indexer/internal/client"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/store/fts"
)

// defaultPointID mirrors the deterministic "path:chunkIndex:contentHash"
// scheme internal/indexing's tests use, so a fresh full rebuild assigns
// the same ids to unchanged chunks as the previous one did.
func defaultPointID(path string, chunkIndex int, content []byte) string {
	sum := sha256.Sum256(content)

	return fmt.Sprintf("%s:%d:%s", path, chunkIndex, hex.EncodeToString(sum[:4]))
}

func newCommands(api func() (client.API, error)) []*command {
	return []*command{
		queryCommand(api),
		queryFTSCommand(api),
		queryHybridCommand(api),
		queryTemporalCommand(api),
		indexCommand(api),
		cleanCommand(api),
		cleanDataCommand(api),
		watchStartCommand(api),
		watchStopCommand(api),
		watchStatusCommand(api),
		statusCommand(api),
		clearCacheCommand(api),
		shutdownCommand(api),
	}
}

func queryCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")
	limit := fs.IntP("limit", "n", 10, "max results")

	return &command{
		name: "query", usage: "query <text>", short: "semantic search over a collection", flags: fs,
		exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("query: text argument required")
			}

			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Query(ctx, *project, args[0], *limit, daemon.QueryFilters{Collection: *collection})
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
}

func queryFTSCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("query-fts", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")
	limit := fs.IntP("limit", "n", 10, "max results")
	regex := fs.Bool("regex", false, "treat query as a regular expression")

	return &command{
		name: "query-fts", usage: "query-fts <text>", short: "full-text search over a collection", flags: fs,
		exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("query-fts: text argument required")
			}

			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.QueryFTS(*project, args[0], daemon.QueryFilters{Collection: *collection}, fts.SearchOptions{Limit: *limit, Regex: *regex})
			if err != nil {
				return err
			}

			formatFTSMatches(matches)

			return nil
		},
	}
}

func queryHybridCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("query-hybrid", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")
	limit := fs.IntP("limit", "n", 10, "max results")

	return &command{
		name: "query-hybrid", usage: "query-hybrid <text>", short: "merged semantic + full-text search", flags: fs,
		exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("query-hybrid: text argument required")
			}

			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.QueryHybrid(ctx, *project, args[0], *limit, daemon.QueryFilters{Collection: *collection}, fts.SearchOptions{Limit: *limit})
			if err != nil {
				return err
			}

			formatHybrid(result)

			return nil
		},
	}
}

func queryTemporalCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("query-temporal", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")
	limit := fs.IntP("limit", "n", 10, "max results")
	timeRange := fs.String("time-range", "all", `"all" or "YYYY-MM-DD..YYYY-MM-DD"`)

	return &command{
		name: "query-temporal", usage: "query-temporal <text>", short: "semantic search filtered by file mtime", flags: fs,
		exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("query-temporal: text argument required")
			}

			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.QueryTemporal(ctx, *project, args[0], *timeRange, *limit, daemon.QueryFilters{Collection: *collection})
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
}

func indexCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")
	skipHNSW := fs.Bool("skip-hnsw", false, "skip the HNSW vector rebuild")

	return &command{
		name: "index", usage: "index [files...]", short: "(re)build a collection's indexes", flags: fs,
		exec: func(ctx context.Context, args []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			renderer := lineProgress{}

			result, err := a.Index(ctx, *project, indexing.Params{Collection: *collection, Files: args, SkipHNSW: *skipHNSW}, progressFunc(renderer))
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
}

func cleanCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")

	return &command{
		name: "clean", usage: "clean", short: "delete a collection's vectors (keeps FTS)", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Clean(*project, daemon.CleanParams{Collection: *collection})
		},
	}
}

func cleanDataCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("clean-data", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")

	return &command{
		name: "clean-data", usage: "clean-data", short: "delete a collection entirely", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.CleanData(*project, daemon.CleanParams{Collection: *collection})
		},
	}
}

func watchStartCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("watch-start", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")
	collection := fs.String("collection", "", "collection name")

	return &command{
		name: "watch-start", usage: "watch-start", short: "begin watching the project for file changes", flags: fs,
		exec: func(ctx context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.WatchStart(ctx, *project, *collection)
		},
	}
}

func watchStopCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("watch-stop", flag.ContinueOnError)

	return &command{
		name: "watch-stop", usage: "watch-stop", short: "stop the active watch session", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(a.WatchStop())
		},
	}
}

func watchStatusCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("watch-status", flag.ContinueOnError)

	return &command{
		name: "watch-status", usage: "watch-status", short: "show the current watch session state", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(a.WatchStatus())
		},
	}
}

func statusCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	project := fs.StringP("project", "p", ".", "project root")

	return &command{
		name: "status", usage: "status", short: "show cache/storage/watch/indexing state", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Status(*project)
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
}

func clearCacheCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("clear-cache", flag.ContinueOnError)

	return &command{
		name: "clear-cache", usage: "clear-cache", short: "drop every cached project entry", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			a.ClearCache()

			return nil
		},
	}
}

func shutdownCommand(apiFn func() (client.API, error)) *command {
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)

	return &command{
		name: "shutdown", usage: "shutdown", short: "stop the running daemon", flags: fs,
		exec: func(_ context.Context, _ []string) error {
			a, err := apiFn()
			if err != nil {
				return err
			}
			defer a.Close()

			a.Shutdown()

			return nil
		},
	}
}
