package fs

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrDirSync indicates the parent directory could not be synced after a
// rename. The new file/directory is in place but durability of the rename
// itself is not guaranteed until the next fsync of that directory.
var ErrDirSync = errors.New("fs: dir sync")

// AtomicWriter writes files and swaps directories atomically via rename(2).
//
// This is the single place in the codebase that performs the temp-then-
// rename dance; [github.com/localcode/indexer/internal/rebuild] builds on
// top of it rather than calling os.Rename directly, so every atomic swap in
// the system goes through the same durability discipline.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter returns an AtomicWriter backed by fsys.
func NewAtomicWriter(fsys FS) *AtomicWriter {
	if fsys == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fsys}
}

// SwapFile replaces target with the contents currently at tmpPath via a
// single rename, then fsyncs the parent directory. tmpPath is consumed: on
// success it no longer exists at its original path (it IS target).
func (w *AtomicWriter) SwapFile(tmpPath, target string) error {
	if err := w.fs.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", tmpPath, target, err)
	}

	dir := filepath.Dir(target)
	if err := w.fsyncDir(dir); err != nil {
		return errors.Join(ErrDirSync, err)
	}

	return nil
}

// SwapDir replaces the directory at target with tmpDir via rename, moving
// any pre-existing target directory aside to staleTarget first. Once the
// new directory is in place and the parent is fsynced, SwapDir removes
// staleTarget itself, best effort (a removal error is ignored).
func (w *AtomicWriter) SwapDir(tmpDir, target, staleTarget string) error {
	exists, err := w.fs.Exists(target)
	if err != nil {
		return fmt.Errorf("stat %q: %w", target, err)
	}

	if exists {
		if err := w.fs.Rename(target, staleTarget); err != nil {
			return fmt.Errorf("move aside %q -> %q: %w", target, staleTarget, err)
		}
	}

	if err := w.fs.Rename(tmpDir, target); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", tmpDir, target, err)
	}

	dir := filepath.Dir(target)
	if err := w.fsyncDir(dir); err != nil {
		return errors.Join(ErrDirSync, err)
	}

	if exists {
		_ = w.fs.RemoveAll(staleTarget)
	}

	return nil
}

func (w *AtomicWriter) fsyncDir(dir string) error {
	f, err := w.fs.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %q: %w", dir, err)
	}

	syncErr := f.Sync()
	closeErr := f.Close()

	if syncErr != nil {
		return fmt.Errorf("sync dir %q: %w", dir, syncErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close dir %q: %w", dir, closeErr)
	}

	return nil
}
