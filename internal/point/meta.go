package point

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/localcode/indexer/internal/fs"
)

// LoadMeta reads and decodes collection_meta.json. Returns os.ErrNotExist
// (wrapped) if the file is absent - callers treat that as "no index yet",
// not as corruption.
func LoadMeta(fsys fs.FS, l Layout) (CollectionMeta, error) {
	var meta CollectionMeta

	data, err := fsys.ReadFile(l.MetaFile())
	if err != nil {
		return meta, err
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode %s: %w", l.MetaFile(), err)
	}

	return meta, nil
}

// SaveMeta writes collection_meta.json atomically via writer.
func SaveMeta(fsys fs.FS, writer *fs.AtomicWriter, l Layout, meta CollectionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	if err := fsys.MkdirAll(l.Dir(), 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.Dir(), err)
	}

	tmp := l.MetaFile() + ".tmp"

	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return fmt.Errorf("sync %s: %w", tmp, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	return writer.SwapFile(tmp, l.MetaFile())
}
