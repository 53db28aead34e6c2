package hnsw

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapping owns an mmap'd view of hnsw_index.bin. Dropping it (via Close)
// releases the kernel's hold on the backing inode - the release discipline
// spec §5 requires CacheEntry.invalidate() to trigger.
type mapping struct {
	data []byte
	file *os.File
}

func mapFile(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	if info.Size() == 0 {
		_ = f.Close()

		return nil, fmt.Errorf("%q: %w", path, errTruncated)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}

	return &mapping{data: data, file: f}, nil
}

// Close unmaps and closes the backing file. Idempotent.
func (m *mapping) Close() error {
	if m == nil || m.data == nil {
		return nil
	}

	err := unix.Munmap(m.data)
	m.data = nil

	closeErr := m.file.Close()
	if err != nil {
		return err
	}

	return closeErr
}
