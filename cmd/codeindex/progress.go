package main

import (
	"fmt"
	"os"

	"github.com/localcode/indexer/internal/collab"
)

// lineProgress is the minimal line-printing [collab.ProgressRenderer]
// spec §4/§6 calls for - no TUI library, since "progress-rendering
// terminal UI" is explicitly out of scope.
type lineProgress struct{}

func (lineProgress) HandleSetupMessage(info string) {
	fmt.Fprintln(os.Stderr, info)
}

func (lineProgress) StartBottomDisplay() {}

func (p lineProgress) Update(current, total int, path, info string, concurrentFiles []collab.FileStatus) {
	if total == 0 {
		fmt.Fprintln(os.Stderr, info)
		return
	}

	fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", current, total, path, info)
}

func (lineProgress) Stop() {}

var _ collab.ProgressRenderer = lineProgress{}

// progressFunc adapts r into a [collab.ProgressFunc] for passing directly
// to Index.
func progressFunc(r collab.ProgressRenderer) collab.ProgressFunc {
	started := false

	return func(current, total int, path, info string, concurrentFiles []collab.FileStatus) {
		if !started {
			r.StartBottomDisplay()
			started = true
		}

		if total == 0 {
			r.HandleSetupMessage(info)
			return
		}

		r.Update(current, total, path, info, concurrentFiles)
	}
}
