// Package main implements codeindex, the CLI bound to [internal/client]
// (spec §4.11): it dials a running codeindexd, spawning or falling back to
// an in-process [client.Standalone] run when none answers, the way the
// teacher's cmd/tk binds its internal/cli Command set to internal/ticket.
package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// command mirrors the teacher's internal/cli.Command shape (one flag set
// plus an Exec closure), trimmed to what a single-binary daemon CLI needs
// - no generic help-text framework, since codeindex has a fixed, small
// command table rather than the teacher's extensible ticket subcommands.
type command struct {
	name  string
	usage string
	short string
	flags *flag.FlagSet
	exec  func(ctx context.Context, args []string) error
}

func (c *command) run(ctx context.Context, args []string) error {
	if err := c.flags.Parse(args); err != nil {
		return err
	}

	return c.exec(ctx, c.flags.Args())
}

func printUsage(commands []*command) {
	fmt.Println("Usage: codeindex <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")

	for _, c := range commands {
		fmt.Printf("  %-16s %s\n", c.name, c.short)
	}
}

func dispatch(ctx context.Context, commands []*command, args []string) int {
	if len(args) == 0 {
		printUsage(commands)
		return 1
	}

	name := args[0]
	if name == "-h" || name == "--help" {
		printUsage(commands)
		return 0
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}

		if err := c.run(ctx, args[1:]); err != nil {
			fmt.Println("error:", err)
			return 1
		}

		return 0
	}

	fmt.Println("error: unknown command:", name)
	printUsage(commands)

	return 1
}
