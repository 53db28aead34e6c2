// Package fs provides the filesystem abstraction every on-disk component in
// this repository is built against, so that crash- and lock-contention
// behavior can be exercised with a fake implementation in tests instead of
// the real filesystem.
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// Satisfied by [os.File]. Implementations must behave like [os.File],
// including that [File.Fd] returns a descriptor usable with [syscall.Flock]
// until the file is closed.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor, for syscalls like flock.
	Fd() uintptr

	Stat() (os.FileInfo, error)
	Sync() error
	Chmod(mode os.FileMode) error
}

// FS defines the filesystem operations the rebuild, store, and cache layers
// need. All methods mirror their [os] package equivalents.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error

	ReadDir(path string) ([]os.DirEntry, error)
	MkdirAll(path string, perm os.FileMode) error

	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)

	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
}

var _ File = (*os.File)(nil)
