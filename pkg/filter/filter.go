package filter

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

// ShouldScanDirectory checks if a directory (relative to the scan root)
// should be descended into. A directory is skipped when any exclude pattern
// matches its base name (glob) or appears as a segment of its relative path.
func ShouldScanDirectory(relPath string, exclude []string) bool {
	base := filepath.Base(relPath)

	for _, pattern := range exclude {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return false
		}

		// Literal segment match anywhere in the relative path
		for _, seg := range strings.Split(relPath, string(filepath.Separator)) {
			if seg == pattern {
				return false
			}
		}
	}

	return true
}

// ShouldScanFile checks if a file should be included in the inventory.
// Returns: NOT matches_blacklist OR matches_whitelist.
// Patterns are regexes applied to the slash-separated relative path.
func ShouldScanFile(relPath string, blacklist []string, whitelist []string) bool {
	slashPath := filepath.ToSlash(relPath)

	matchesBlacklist := false
	matchedPattern := ""
	for _, pattern := range blacklist {
		matched, err := regexp.MatchString(pattern, slashPath)
		if err != nil {
			slog.Debug("Invalid regex pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			matchesBlacklist = true
			matchedPattern = pattern
			break
		}
	}

	if !matchesBlacklist {
		return true
	}

	// Matches blacklist - check if whitelist provides exception
	for _, pattern := range whitelist {
		matched, err := regexp.MatchString(pattern, slashPath)
		if err != nil {
			continue
		}
		if matched {
			slog.Debug("Whitelist exception matched", "pattern", pattern, "path", slashPath)
			return true
		}
	}

	slog.Debug("Rejecting file", "path", slashPath, "blacklist_pattern", matchedPattern)
	return false
}
