package point

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/localcode/indexer/internal/fs"
)

// RegistryFileName is the project-relative path of the collection
// registry, a small JSON listing of known collection names. It exists
// purely as a convenience index over what is otherwise derivable by
// walking .code-indexer/index/*, so it is always safe to delete and
// rebuild (spec §5 supplemented feature, echoing the teacher's
// "rebuildable from source of truth" design for its SQLite index).
const RegistryFileName = "registry.json"

// Registry lists the collections known for one project.
type Registry struct {
	Collections []string `json:"collections"`
}

func registryPath(projectPath string) string {
	return filepath.Join(projectPath, ".code-indexer", RegistryFileName)
}

// LoadRegistry reads the registry, rebuilding it from disk (by walking
// .code-indexer/index/*) if the file is missing.
func LoadRegistry(fsys fs.FS, projectPath string) (Registry, error) {
	path := registryPath(projectPath)

	exists, err := fsys.Exists(path)
	if err != nil {
		return Registry{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if !exists {
		return RebuildRegistry(fsys, projectPath)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read %s: %w", path, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return reg, nil
}

// RebuildRegistry regenerates the registry by listing the directories
// under .code-indexer/index/, then persists it.
func RebuildRegistry(fsys fs.FS, projectPath string) (Registry, error) {
	indexDir := filepath.Join(projectPath, ".code-indexer", "index")

	entries, err := fsys.ReadDir(indexDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{Collections: []string{}}, nil
		}

		return Registry{}, fmt.Errorf("read %s: %w", indexDir, err)
	}

	var names []string

	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	reg := Registry{Collections: names}

	return reg, SaveRegistry(fsys, projectPath, reg)
}

// SaveRegistry writes the registry as plain JSON through fsys.WriteFile. It
// is not rebuilt via AtomicRebuilder/flock like the per-collection stores:
// the registry can always be regenerated from the index directories with
// RebuildRegistry, so the full rebuild-lock machinery would be overkill.
func SaveRegistry(fsys fs.FS, projectPath string, reg Registry) error {
	dir := filepath.Join(projectPath, ".code-indexer")
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	path := registryPath(projectPath)

	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// AddCollection adds name to the registry if absent, saving the result.
func AddCollection(fsys fs.FS, projectPath, name string) error {
	reg, err := LoadRegistry(fsys, projectPath)
	if err != nil {
		return err
	}

	for _, c := range reg.Collections {
		if c == name {
			return nil
		}
	}

	reg.Collections = append(reg.Collections, name)
	sort.Strings(reg.Collections)

	return SaveRegistry(fsys, projectPath, reg)
}

// RemoveCollection removes name from the registry if present, saving the
// result.
func RemoveCollection(fsys fs.FS, projectPath, name string) error {
	reg, err := LoadRegistry(fsys, projectPath)
	if err != nil {
		return err
	}

	out := reg.Collections[:0]

	for _, c := range reg.Collections {
		if c != name {
			out = append(out, c)
		}
	}

	reg.Collections = out

	return SaveRegistry(fsys, projectPath, reg)
}
