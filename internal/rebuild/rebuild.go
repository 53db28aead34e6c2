// Package rebuild implements AtomicRebuilder (spec §4.1): cross-process
// flock-serialized build-to-temp-then-atomic-rename for both single files
// (hnsw_index.bin, id_index.bin) and directories (tantivy_index/).
//
// The lock is held for the entire build, not merely the swap. Readers never
// acquire it; they rely on the kernel's rename(2) semantics (pre-swap
// openers keep the old inode) to avoid ever observing a half-written file.
// Lock contention is therefore between writers only - this is what lets
// queries proceed uninterrupted while a rebuild runs in the background.
package rebuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/localcode/indexer/internal/fs"
)

// DefaultOrphanAge is the minimum age of a `*.tmp` file/dir before
// [Rebuilder] treats it as an abandoned leftover from a crashed build.
const DefaultOrphanAge = time.Hour

// Rebuilder performs lock-serialized atomic builds for one collection
// directory. Callers typically keep one Rebuilder per process (it is
// stateless beyond configuration) and pass the target collection's lock
// path on each call.
type Rebuilder struct {
	fs        fs.FS
	locker    *fs.Locker
	writer    *fs.AtomicWriter
	orphanAge time.Duration
}

// New returns a Rebuilder backed by fsys with the default orphan-age
// threshold (spec §4.1: "age >= 1h").
func New(fsys fs.FS) *Rebuilder {
	return &Rebuilder{
		fs:        fsys,
		locker:    fs.NewLocker(fsys),
		writer:    fs.NewAtomicWriter(fsys),
		orphanAge: DefaultOrphanAge,
	}
}

// WithOrphanAge overrides the orphan-tmp age threshold, mainly for tests.
func (r *Rebuilder) WithOrphanAge(d time.Duration) *Rebuilder {
	r.orphanAge = d

	return r
}

// RebuildFile acquires the exclusive lock at lockPath (blocking), cleans up
// orphaned temp files in target's directory, invokes buildFn with a temp
// path (`target + ".tmp"`), and on success atomically renames the temp
// file over target. On failure the temp file is removed. The lock is held
// for the whole call, including afterSwap if non-nil - callers that mint
// collection_meta.json's index_rebuild_uuid pass it here so the metadata
// write happens under the same lock as the swap it describes (spec §4.2),
// rather than in a separate, unlocked call after RebuildFile returns.
func (r *Rebuilder) RebuildFile(lockPath, target string, buildFn func(tmpPath string) error, afterSwap func() error) error {
	lock, err := r.locker.Lock(lockPath)
	if err != nil {
		return fmt.Errorf("rebuild: acquire lock %q: %w", lockPath, err)
	}
	defer func() { _ = lock.Close() }()

	dir := filepath.Dir(target)
	if err := r.cleanupOrphanedTempLocked(dir); err != nil {
		return fmt.Errorf("rebuild: cleanup orphaned temp: %w", err)
	}

	tmp := target + ".tmp"

	if err := buildFn(tmp); err != nil {
		_ = r.fs.RemoveAll(tmp)

		return fmt.Errorf("rebuild: build %q: %w", target, err)
	}

	if err := r.writer.SwapFile(tmp, target); err != nil {
		_ = r.fs.RemoveAll(tmp)

		return fmt.Errorf("rebuild: swap %q: %w", target, err)
	}

	if afterSwap != nil {
		if err := afterSwap(); err != nil {
			return fmt.Errorf("rebuild: post-swap %q: %w", target, err)
		}
	}

	return nil
}

// RebuildDir is RebuildFile's directory-swap counterpart, used for the FTS
// index: buildFn writes into `target + ".tmp"/`, and the swap moves any
// pre-existing target directory aside before renaming the fresh one in.
// afterSwap, if non-nil, runs after the swap but before the lock releases,
// for the same reason RebuildFile takes it (spec §4.2 metadata linearization).
func (r *Rebuilder) RebuildDir(lockPath, target string, buildFn func(tmpDir string) error, afterSwap func() error) error {
	lock, err := r.locker.Lock(lockPath)
	if err != nil {
		return fmt.Errorf("rebuild: acquire lock %q: %w", lockPath, err)
	}
	defer func() { _ = lock.Close() }()

	dir := filepath.Dir(target)
	if err := r.cleanupOrphanedTempLocked(dir); err != nil {
		return fmt.Errorf("rebuild: cleanup orphaned temp: %w", err)
	}

	tmpDir := target + ".tmp"

	_ = r.fs.RemoveAll(tmpDir)

	// tmpDir itself is pre-created here, not left for buildFn's index library
	// to create on its own - bleve's scorch backend accepts an existing
	// empty directory as its index path without complaint, and a generic
	// RebuildDir shouldn't assume every future buildFn will create its own
	// directory the way bleve.New happens to.
	if err := r.fs.MkdirAll(tmpDir, 0o750); err != nil {
		return fmt.Errorf("rebuild: mkdir %q: %w", tmpDir, err)
	}

	if err := buildFn(tmpDir); err != nil {
		_ = r.fs.RemoveAll(tmpDir)

		return fmt.Errorf("rebuild: build %q: %w", target, err)
	}

	staleTarget := target + ".stale-" + fmt.Sprint(time.Now().UnixNano())

	if err := r.writer.SwapDir(tmpDir, target, staleTarget); err != nil {
		_ = r.fs.RemoveAll(tmpDir)

		return fmt.Errorf("rebuild: swap dir %q: %w", target, err)
	}

	if afterSwap != nil {
		if err := afterSwap(); err != nil {
			return fmt.Errorf("rebuild: post-swap %q: %w", target, err)
		}
	}

	return nil
}

// CleanupOrphanedTemp deletes `*.tmp` files and `*.tmp` directories in dir
// older than the configured orphan-age threshold. It is also invoked
// automatically as the first action inside every locked rebuild (spec
// §4.1), but is exported so a standalone maintenance pass can call it
// without starting a build.
func (r *Rebuilder) CleanupOrphanedTemp(dir string) error {
	lock, err := r.locker.TryLock(filepath.Join(dir, ".index_rebuild.lock"))
	if err != nil {
		// Another rebuild is in progress; it will clean up as its first
		// action, nothing to do here.
		return nil //nolint:nilerr // contention is not an error for a best-effort sweep
	}
	defer func() { _ = lock.Close() }()

	return r.cleanupOrphanedTempLocked(dir)
}

func (r *Rebuilder) cleanupOrphanedTempLocked(dir string) error {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	cutoff := time.Now().Add(-r.orphanAge)

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".tmp") && !strings.Contains(entry.Name(), ".tmp-") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := r.fs.Stat(path)
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		_ = r.fs.RemoveAll(path)
	}

	return nil
}
