package point

import "path/filepath"

// Layout resolves the on-disk paths for one collection (spec §6).
type Layout struct {
	ProjectPath string
	Name        string
}

// NewLayout returns the layout for collection name under projectPath.
func NewLayout(projectPath, name string) Layout {
	return Layout{ProjectPath: projectPath, Name: name}
}

func (l Layout) Dir() string {
	return filepath.Join(l.ProjectPath, ".code-indexer", "index", l.Name)
}

func (l Layout) HNSWFile() string    { return filepath.Join(l.Dir(), HNSWFileName) }
func (l Layout) IDIndexFile() string { return filepath.Join(l.Dir(), IDIndexFileName) }
func (l Layout) FTSDir() string      { return filepath.Join(l.Dir(), FTSDirName) }
func (l Layout) MetaFile() string    { return filepath.Join(l.Dir(), MetaFileName) }
func (l Layout) RebuildLock() string { return filepath.Join(l.Dir(), RebuildLockName) }

// SocketPath is the per-project daemon Unix socket path (spec §3).
func SocketPath(projectPath string) string {
	return filepath.Join(projectPath, ".code-indexer", "daemon.sock")
}

// ConfigPath is the per-project daemon config file path.
func ConfigPath(projectPath string) string {
	return filepath.Join(projectPath, ".code-indexer", "config.json")
}
