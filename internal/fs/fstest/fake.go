// Package fstest provides an in-memory [fs.FS] fake for exercising code
// that reads and writes through that interface (collection_meta.json, the
// collection registry) without touching the real filesystem, in the spirit
// of the teacher's pkg/fs chaos/crash test doubles. Its file handles are
// not *os.File, so internal/fs's Locker cannot lock them and the rebuild
// paths need the real filesystem.
package fstest

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	indexerfs "github.com/localcode/indexer/internal/fs"
)

// Fake is an in-memory filesystem. Safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	files map[string]*entry
}

type entry struct {
	data  []byte
	mode  os.FileMode
	isDir bool
	mtime time.Time
}

// New returns an empty Fake filesystem.
func New() *Fake {
	return &Fake{files: make(map[string]*entry)}
}

func clean(path string) string { return filepath.Clean(path) }

func (f *Fake) Open(path string) (indexerfs.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.files[clean(path)]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	return newHandle(f, clean(path), e, true), nil
}

func (f *Fake) Create(path string) (indexerfs.File, error) {
	return f.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
}

func (f *Fake) OpenFile(path string, flag int, perm os.FileMode) (indexerfs.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := clean(path)

	e, ok := f.files[p]
	if !ok {
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}

		e = &entry{mode: perm, mtime: time.Now()}
		f.files[p] = e
	} else if flag&os.O_EXCL != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrExist}
	}

	if flag&os.O_TRUNC != 0 {
		e.data = nil
	}

	return newHandle(f, p, e, true), nil
}

func (f *Fake) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.files[clean(path)]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	out := make([]byte, len(e.data))
	copy(out, e.data)

	return out, nil
}

func (f *Fake) WriteFile(path string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[clean(path)] = &entry{data: append([]byte(nil), data...), mode: perm, mtime: time.Now()}

	return nil
}

func (f *Fake) ReadDir(path string) ([]os.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := clean(path) + string(filepath.Separator)

	seen := map[string]bool{}

	var out []os.DirEntry

	for p, e := range f.files {
		if !(len(p) > len(prefix) && p[:len(prefix)] == prefix) {
			continue
		}

		rest := p[len(prefix):]

		name := rest
		if idx := indexOfSep(rest); idx >= 0 {
			name = rest[:idx]
		}

		if seen[name] {
			continue
		}

		seen[name] = true
		out = append(out, fakeDirEntry{name: name, isDir: e.isDir})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	return out, nil
}

func indexOfSep(s string) int {
	for i, r := range s {
		if r == filepath.Separator {
			return i
		}
	}

	return -1
}

func (f *Fake) MkdirAll(path string, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := clean(path)
	if _, ok := f.files[p]; !ok {
		f.files[p] = &entry{isDir: true, mode: perm | os.ModeDir, mtime: time.Now()}
	}

	return nil
}

func (f *Fake) Stat(path string) (os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := clean(path)

	e, ok := f.files[p]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}

	return fakeFileInfo{name: filepath.Base(p), e: e}, nil
}

func (f *Fake) Exists(path string) (bool, error) {
	_, err := f.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

func (f *Fake) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := clean(path)
	if _, ok := f.files[p]; !ok {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
	}

	delete(f.files, p)

	return nil
}

func (f *Fake) RemoveAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := clean(path)
	prefix := p + string(filepath.Separator)

	for k := range f.files {
		if k == p || (len(k) > len(prefix) && k[:len(prefix)] == prefix) {
			delete(f.files, k)
		}
	}

	return nil
}

func (f *Fake) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	op, np := clean(oldpath), clean(newpath)

	prefix := op + string(filepath.Separator)
	for k, v := range f.files {
		if k == op {
			delete(f.files, k)
			f.files[np] = v
			v.mtime = time.Now()

			continue
		}

		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(f.files, k)
			f.files[np+k[len(op):]] = v
		}
	}

	return nil
}

var _ indexerfs.FS = (*Fake)(nil)

type fakeFileInfo struct {
	name string
	e    *entry
}

func (i fakeFileInfo) Name() string       { return i.name }
func (i fakeFileInfo) Size() int64        { return int64(len(i.e.data)) }
func (i fakeFileInfo) Mode() os.FileMode  { return i.e.mode }
func (i fakeFileInfo) ModTime() time.Time { return i.e.mtime }
func (i fakeFileInfo) IsDir() bool        { return i.e.isDir }
func (i fakeFileInfo) Sys() any           { return nil }

type fakeDirEntry struct {
	name  string
	isDir bool
}

func (d fakeDirEntry) Name() string { return d.name }
func (d fakeDirEntry) IsDir() bool  { return d.isDir }
func (d fakeDirEntry) Type() os.FileMode {
	if d.isDir {
		return os.ModeDir
	}

	return 0
}
func (d fakeDirEntry) Info() (fs.FileInfo, error) { return nil, errors.New("not implemented") }
