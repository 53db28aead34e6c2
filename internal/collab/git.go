package collab

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// execGitTopology implements [GitTopology] by shelling out to `git`. This
// is plain process invocation rather than a library dependency, so it is
// not substituted with a pack dependency the way the ANN/FTS/watch
// concerns are (see SPEC_FULL.md §4).
type execGitTopology struct {
	repoDir string
}

// NewGitTopology returns a [GitTopology] that runs `git` inside repoDir.
func NewGitTopology(repoDir string) GitTopology {
	return &execGitTopology{repoDir: repoDir}
}

// AnalyzeBranchChange implements spec §4.8's decision: when old and new
// branch are the same and both commits are known and differ, use commit
// comparison (`git diff --name-only old..new`) - this fixes the prior
// same-branch-commit detection gap called out in the spec. Otherwise it
// falls back to a branch-vs-branch diff.
func (g *execGitTopology) AnalyzeBranchChange(ctx context.Context, change BranchChange) (BranchChangeResult, error) {
	if change.OldBranch == change.NewBranch && change.OldCommit != "" && change.NewCommit != "" && change.OldCommit != change.NewCommit {
		return g.diffCommits(ctx, change.OldCommit, change.NewCommit)
	}

	return g.diffBranches(ctx, change.OldBranch, change.NewBranch)
}

func (g *execGitTopology) diffCommits(ctx context.Context, oldCommit, newCommit string) (BranchChangeResult, error) {
	files, err := g.run(ctx, "diff", "--name-only", oldCommit+".."+newCommit)
	if err != nil {
		return BranchChangeResult{}, err
	}

	mergeBase, _ := g.run(ctx, "merge-base", oldCommit, newCommit)

	return BranchChangeResult{ChangedFiles: files, MergeBase: firstLine(mergeBase)}, nil
}

func (g *execGitTopology) diffBranches(ctx context.Context, oldBranch, newBranch string) (BranchChangeResult, error) {
	if oldBranch == "" || newBranch == "" {
		return BranchChangeResult{}, nil
	}

	files, err := g.run(ctx, "diff", "--name-only", oldBranch+".."+newBranch)
	if err != nil {
		return BranchChangeResult{}, err
	}

	mergeBase, _ := g.run(ctx, "merge-base", oldBranch, newBranch)

	return BranchChangeResult{ChangedFiles: files, MergeBase: firstLine(mergeBase)}, nil
}

func (g *execGitTopology) run(ctx context.Context, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoDir

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	var lines []string

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, nil
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return lines[0]
}
