package config

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem abstracts filesystem operations for testing
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	Abs(path string) (string, error)
	UserHomeDir() (string, error)
}

// RealFileSystem implements FileSystem using actual OS calls
type RealFileSystem struct{}

func (r *RealFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (r *RealFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (r *RealFileSystem) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (r *RealFileSystem) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Loader handles loading and merging configurations
type Loader struct {
	fs FileSystem
}

// NewLoader creates a new Loader with the given filesystem
func NewLoader(fs FileSystem) *Loader {
	return &Loader{fs: fs}
}

// NewDefaultLoader creates a Loader with real filesystem operations
func NewDefaultLoader() *Loader {
	return &Loader{fs: &RealFileSystem{}}
}

// LoadGlobal loads the global configuration from ~/.sawmill/config.yaml
func (l *Loader) LoadGlobal() (*GlobalConfig, error) {
	home, err := l.fs.UserHomeDir()
	if err != nil {
		return nil, err
	}

	return l.LoadGlobalFromPath(filepath.Join(home, ".sawmill", "config.yaml"))
}

// LoadGlobalFromPath loads global config from a specific path
func (l *Loader) LoadGlobalFromPath(path string) (*GlobalConfig, error) {
	return LoadGlobalConfigFromPath(path, l.fs)
}

// FindLocal walks up from startDir to find the nearest .sawmill.yaml file
func (l *Loader) FindLocal(startDir string) (string, error) {
	return FindLocalConfigWithFS(startDir, l.fs)
}

// LoadLocal loads and validates a local .sawmill.yaml file
func (l *Loader) LoadLocal(path string) (*LocalConfig, error) {
	return LoadLocalConfigWithFS(path, l.fs)
}

// LoadForRun resolves the full merged config for a run rooted at inputRoot:
// global profile, then the nearest local .sawmill.yaml at or above the
// input root, if any.
func (l *Loader) LoadForRun(inputRoot string) (*MergedConfig, error) {
	global, err := l.LoadGlobal()
	if err != nil {
		return nil, err
	}
	return l.MergeForRun(global, inputRoot)
}

// MergeForRun merges an already-loaded global config with the local config
// discovered from inputRoot.
func (l *Loader) MergeForRun(global *GlobalConfig, inputRoot string) (*MergedConfig, error) {
	localPath, err := l.FindLocal(inputRoot)
	if err != nil {
		return nil, err
	}

	var local *LocalConfig
	if localPath != "" {
		local, err = l.LoadLocal(localPath)
		if err != nil {
			return nil, err
		}
	}

	return MergeConfig(global, local, filepath.Dir(localPath))
}
