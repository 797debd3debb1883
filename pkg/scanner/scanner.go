package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/wouteroostervld/sawmill/pkg/filter"
)

// SourceFile is one entry of the scan inventory. Immutable once produced.
type SourceFile struct {
	RelPath  string // slash-separated path relative to the scan root, unique per run
	Content  []byte
	Language string // tag derived from the file extension, "" if unknown
	Size     int    // len(Content)
}

// ScanError reports a root that cannot be scanned at all
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Config holds scanner configuration
type Config struct {
	Exclude      []string // directory patterns to skip
	Blacklist    []string // file reject regexes (relative paths)
	Whitelist    []string // exceptions overriding the blacklist
	UseGitignore bool     // honor .gitignore / .sawmillignore rules
}

// Scanner walks an input root and produces the SourceFile inventory
type Scanner struct {
	cfg Config
}

// New creates a new scanner
func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan walks root in deterministic lexicographic order and returns the
// inventory. Only reads; never mutates the tree. Symlinks resolving outside
// the root are not followed.
func (s *Scanner) Scan(root string) ([]SourceFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	var rules *ignore.GitIgnore
	if s.cfg.UseGitignore {
		rules = loadIgnoreRules(absRoot)
	}

	var files []SourceFile

	// WalkDir visits entries in lexical order per directory, which keeps
	// the inventory (and therefore chunk order) deterministic.
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			slog.Warn("Skipping unreadable entry", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if !filter.ShouldScanDirectory(rel, s.cfg.Exclude) {
				return fs.SkipDir
			}
			if rules != nil && rules.MatchesPath(relSlash+"/") {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				slog.Debug("Skipping broken symlink", "path", relSlash)
				return nil
			}
			if !withinRoot(target, absRoot) {
				slog.Debug("Skipping symlink outside root", "path", relSlash, "target", target)
				return nil
			}
			path = target
		} else if !d.Type().IsRegular() {
			return nil
		}

		if rules != nil && rules.MatchesPath(relSlash) {
			return nil
		}

		if !filter.ShouldScanFile(relSlash, s.cfg.Blacklist, s.cfg.Whitelist) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", relSlash, "error", err)
			return nil
		}

		if isBinaryContent(content) {
			slog.Debug("Skipping binary file", "path", relSlash)
			return nil
		}

		files = append(files, SourceFile{
			RelPath:  relSlash,
			Content:  content,
			Language: LanguageForPath(relSlash),
			Size:     len(content),
		})
		return nil
	})

	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	slog.Info("Scan complete", "root", absRoot, "files", len(files))
	return files, nil
}

// loadIgnoreRules combines .gitignore and .sawmillignore at the root.
// Missing files just contribute no rules.
func loadIgnoreRules(root string) *ignore.GitIgnore {
	var allRules []string

	for _, name := range []string{".gitignore", ".sawmillignore"} {
		if rules, err := readIgnoreFile(filepath.Join(root, name)); err == nil {
			allRules = append(allRules, rules...)
		}
	}

	if len(allRules) == 0 {
		return nil
	}

	return ignore.CompileIgnoreLines(allRules...)
}

// readIgnoreFile reads a single ignore file and returns its lines.
func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// isBinaryContent sniffs the first 512 bytes using content type detection
func isBinaryContent(content []byte) bool {
	sniff := content
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}

	contentType := http.DetectContentType(sniff)

	// Allow text-based application formats
	if strings.HasPrefix(contentType, "application/") {
		allowed := []string{"json", "xml", "javascript", "x-sh", "x-perl", "x-python"}
		for _, a := range allowed {
			if strings.Contains(contentType, a) {
				return false
			}
		}
		return true
	}

	return !strings.HasPrefix(contentType, "text/")
}

func withinRoot(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
