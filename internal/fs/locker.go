package fs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock indicates a non-blocking lock acquisition found the lock
// already held by another process.
var ErrWouldBlock = errors.New("fs: lock would block")

// Lock is a held advisory file lock. The zero value is not usable; obtain
// one via [Locker.Lock] or [Locker.TryLock].
type Lock struct {
	file *os.File
}

// Close releases the lock and closes the underlying lock file descriptor.
// Does not delete the lock file: the path persists so future acquirers
// reopen the same inode.
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)

	return l.file.Close()
}

// Locker acquires advisory flock(2)-based locks on lock files. A Locker is
// the cross-process mutual-exclusion primitive AtomicRebuilder uses to
// serialize concurrent rebuilders of the same collection. Every Lock call
// opens the lock file afresh, and flock excludes separate open file
// descriptions, so it blocks other goroutines of the same process as well
// as other processes. Locks are not re-entrant: a second Lock on a path
// the caller already holds blocks.
type Locker struct {
	fs FS
}

// NewLocker returns a Locker backed by fsys for opening/creating lock files.
func NewLocker(fsys FS) *Locker {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Locker{fs: fsys}
}

// Lock blocks until an exclusive lock on path is acquired.
func (l *Locker) Lock(path string) (*Lock, error) {
	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	osFile, ok := f.(*os.File)
	if !ok {
		// Only a real *os.File can be flock'd; in-memory handles such as
		// fstest.Fake's are rejected.
		_ = f.Close()

		return nil, fmt.Errorf("lock file %q: not flock-capable", path)
	}

	if err := unix.Flock(int(osFile.Fd()), unix.LOCK_EX); err != nil {
		_ = osFile.Close()

		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return &Lock{file: osFile}, nil
}

// TryLock attempts a non-blocking exclusive lock on path. Returns
// [ErrWouldBlock] if another process already holds it.
func (l *Locker) TryLock(path string) (*Lock, error) {
	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	osFile, ok := f.(*os.File)
	if !ok {
		_ = f.Close()

		return nil, fmt.Errorf("lock file %q: not flock-capable", path)
	}

	err = unix.Flock(int(osFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = osFile.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return &Lock{file: osFile}, nil
}
