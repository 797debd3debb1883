package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveRelativePath resolves a path relative to the config file's directory.
// Handles relative paths, absolute paths, and tilde expansion.
func ResolveRelativePath(configDir, path string) (string, error) {
	// Expand tilde
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	// If already absolute, return as-is
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	// Resolve relative to config directory
	return filepath.Clean(filepath.Join(configDir, path)), nil
}

// NormalizePath cleans and normalizes a path
func NormalizePath(path string) (string, error) {
	// Expand tilde
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

// WithinRoot reports whether path (already cleaned and absolute) is the
// root itself or a descendant of it.
func WithinRoot(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
