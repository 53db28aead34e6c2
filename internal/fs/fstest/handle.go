package fstest

import (
	"errors"
	"io"
	"os"
)

// handle is an open-file view over an entry's byte slice, tracking its own
// read/write offset the way [os.File] does.
type handle struct {
	fake   *Fake
	path   string
	e      *entry
	offset int
	closed bool
}

func newHandle(fake *Fake, path string, e *entry, _ bool) *handle {
	return &handle{fake: fake, path: path, e: e}
}

func (h *handle) Read(p []byte) (int, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	if h.closed {
		return 0, os.ErrClosed
	}

	if h.offset >= len(h.e.data) {
		return 0, io.EOF
	}

	n := copy(p, h.e.data[h.offset:])
	h.offset += n

	return n, nil
}

func (h *handle) Write(p []byte) (int, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	if h.closed {
		return 0, os.ErrClosed
	}

	end := h.offset + len(p)
	if end > len(h.e.data) {
		grown := make([]byte, end)
		copy(grown, h.e.data)
		h.e.data = grown
	}

	copy(h.e.data[h.offset:end], p)
	h.offset = end

	return len(p), nil
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	switch whence {
	case io.SeekStart:
		h.offset = int(offset)
	case io.SeekCurrent:
		h.offset += int(offset)
	case io.SeekEnd:
		h.offset = len(h.e.data) + int(offset)
	default:
		return 0, errors.New("fstest: invalid whence")
	}

	return int64(h.offset), nil
}

func (h *handle) Close() error {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	h.closed = true

	return nil
}

func (h *handle) Fd() uintptr { return 0 }

func (h *handle) Stat() (os.FileInfo, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	return fakeFileInfo{e: h.e}, nil
}

func (h *handle) Sync() error { return nil }

func (h *handle) Chmod(mode os.FileMode) error {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()

	h.e.mode = mode

	return nil
}
