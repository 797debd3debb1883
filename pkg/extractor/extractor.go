// Package extractor reconstructs a file tree from fenced code blocks in
// LLM output. Blocks are annotated with marker lines naming their target
// path; unannotated blocks get synthetic names, and paths that would
// escape the output root are quarantined instead of written.
package extractor

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Conflict policies
const (
	ConflictFirstWins = "first-wins"
	ConflictFailFast  = "fail-fast"
)

// Entry statuses mirror the manifest vocabulary
const (
	StatusWritten     = "written"
	StatusQuarantined = "quarantined"
	StatusConflict    = "conflict"
)

// Entry records the outcome for one target path
type Entry struct {
	Path     string // relative to the output root, or the quarantine path
	Status   string
	Reason   string
	ChunkIdx int
}

// Config holds extractor configuration
type Config struct {
	OutputRoot     string
	ConflictPolicy string // defaults to first-wins
}

// Extractor accumulates code blocks across chunk responses and writes
// the reconstructed tree in one pass. Scan may be called once with the
// assembled document or once per chunk; multi-part files are joined
// regardless of which chunks their parts arrived in.
type Extractor struct {
	root   string
	policy string

	targets     []*fileTarget
	byPath      map[string]*fileTarget
	unnamedSeq  int
	quarantined int
}

// fileTarget is one target file, possibly assembled from numbered parts
type fileTarget struct {
	path      string
	synthetic bool
	chunkIdx  int
	content   string // whole-file blocks
	parts     []filePart
}

type filePart struct {
	num     int
	total   int
	content string
}

// New creates an extractor writing under cfg.OutputRoot
func New(cfg Config) (*Extractor, error) {
	if cfg.OutputRoot == "" {
		return nil, fmt.Errorf("output root cannot be empty")
	}
	policy := cfg.ConflictPolicy
	if policy == "" {
		policy = ConflictFirstWins
	}
	if policy != ConflictFirstWins && policy != ConflictFailFast {
		return nil, fmt.Errorf("unknown conflict policy: %q", policy)
	}
	return &Extractor{
		root:   cfg.OutputRoot,
		policy: policy,
		byPath: make(map[string]*fileTarget),
	}, nil
}

var markerRE = regexp.MustCompile("^(?:#{1,6}\\s+)?(?:\\*\\*)?File:?(?:\\*\\*)?\\s*`([^`]+)`(?:\\s*\\(part\\s+(\\d+)\\s*/\\s*(\\d+)\\))?\\s*$")

type marker struct {
	path  string
	part  int
	total int
}

// Scan parses one response text and buffers its code blocks. chunkIdx
// is recorded on each target for the manifest.
func (e *Extractor) Scan(text string, chunkIdx int) error {
	lines := strings.Split(text, "\n")

	var pending *marker
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if m := markerRE.FindStringSubmatch(trimmed); m != nil {
			mk := &marker{path: m[1]}
			if m[2] != "" {
				fmt.Sscanf(m[2], "%d", &mk.part)
				fmt.Sscanf(m[3], "%d", &mk.total)
			}
			pending = mk
			i++
			continue
		}

		if fence := leadingRun(trimmed, '`'); len(fence) >= 3 {
			lang := strings.TrimSpace(strings.TrimPrefix(trimmed, fence))
			if f := strings.Fields(lang); len(f) > 0 {
				lang = f[0]
			}
			content, next, closed := collectBlock(lines, i+1, len(fence))
			i = next
			if !closed {
				slog.Warn("Code block not closed before end of response", "chunk", chunkIdx)
			}

			mk := pending
			pending = nil
			if err := e.addBlock(mk, lang, content, chunkIdx); err != nil {
				return err
			}
			continue
		}

		// Anything else between a marker and its block voids the marker,
		// except blank lines
		if trimmed != "" {
			pending = nil
		}
		i++
	}

	return nil
}

// collectBlock gathers lines until a closing fence of at least fenceLen
// backticks, or end of input. Returns the block content and the index of
// the line after the block.
func collectBlock(lines []string, start, fenceLen int) (string, int, bool) {
	var body []string
	i := start
	for ; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t")
		run := leadingRun(trimmed, '`')
		if len(run) >= fenceLen && run == trimmed {
			return joinBlock(body), i + 1, true
		}
		body = append(body, lines[i])
	}
	// EOF inside a block still yields the content collected so far
	return joinBlock(body), i, false
}

func joinBlock(body []string) string {
	if len(body) == 0 {
		return ""
	}
	return strings.Join(body, "\n") + "\n"
}

func leadingRun(s string, c byte) string {
	i := 0
	for i < len(s) && s[i] == c {
		i++
	}
	return s[:i]
}

// addBlock routes a parsed block to its file target
func (e *Extractor) addBlock(mk *marker, lang, content string, chunkIdx int) error {
	if mk == nil {
		e.unnamedSeq++
		name := fmt.Sprintf("unnamed_block_%03d%s", e.unnamedSeq, extensionForLanguage(lang))
		e.targets = append(e.targets, &fileTarget{path: name, synthetic: true, chunkIdx: chunkIdx, content: content})
		return nil
	}

	if mk.part > 0 {
		tgt, ok := e.byPath[mk.path]
		if ok {
			// An earlier whole-file block already claimed this path
			if len(tgt.parts) == 0 {
				return e.conflict(mk.path, chunkIdx)
			}
			tgt.parts = append(tgt.parts, filePart{num: mk.part, total: mk.total, content: content})
			return nil
		}
		tgt = &fileTarget{path: mk.path, chunkIdx: chunkIdx}
		tgt.parts = append(tgt.parts, filePart{num: mk.part, total: mk.total, content: content})
		e.targets = append(e.targets, tgt)
		e.byPath[mk.path] = tgt
		return nil
	}

	if _, ok := e.byPath[mk.path]; ok {
		// Duplicate whole-file block, or the path is already being
		// assembled from parts
		return e.conflict(mk.path, chunkIdx)
	}

	tgt := &fileTarget{path: mk.path, chunkIdx: chunkIdx, content: content}
	e.targets = append(e.targets, tgt)
	e.byPath[mk.path] = tgt
	return nil
}

func (e *Extractor) conflict(path string, chunkIdx int) error {
	if e.policy == ConflictFailFast {
		return fmt.Errorf("duplicate file block for %q", path)
	}
	// first-wins: remember the conflict, keep the earlier content
	e.targets = append(e.targets, &fileTarget{path: path, chunkIdx: chunkIdx, content: conflictSentinel})
	return nil
}

const conflictSentinel = "\x00conflict"

// Write materializes every buffered file under the output root and
// returns one manifest entry per target, in encounter order
func (e *Extractor) Write() ([]Entry, error) {
	if err := os.MkdirAll(e.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}

	var entries []Entry
	for _, tgt := range e.targets {
		if tgt.content == conflictSentinel {
			entries = append(entries, Entry{
				Path: tgt.path, Status: StatusConflict,
				Reason: "duplicate path, first occurrence kept", ChunkIdx: tgt.chunkIdx,
			})
			continue
		}

		content, reason := tgt.assemble()
		entry, err := e.writeOne(tgt, content)
		if err != nil {
			return entries, err
		}
		if entry.Reason == "" {
			entry.Reason = reason
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// assemble joins numbered parts in order. Missing parts are tolerated;
// the gap is reported as a reason on the manifest entry.
func (s *fileTarget) assemble() (string, string) {
	if len(s.parts) == 0 {
		return s.content, ""
	}

	parts := make([]filePart, len(s.parts))
	copy(parts, s.parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].num < parts[j].num })

	var b strings.Builder
	seen := make(map[int]bool)
	total := 0
	for _, p := range parts {
		if seen[p.num] {
			continue
		}
		seen[p.num] = true
		b.WriteString(p.content)
		if p.total > total {
			total = p.total
		}
	}

	reason := ""
	if total > 0 && len(seen) < total {
		reason = fmt.Sprintf("missing parts: have %d of %d", len(seen), total)
	}
	return b.String(), reason
}

func (e *Extractor) writeOne(tgt *fileTarget, content string) (Entry, error) {
	rel := tgt.path
	if !isSafeRelPath(rel) {
		e.quarantined++
		qname := fmt.Sprintf("%03d_%s", e.quarantined, sanitizeName(rel))
		qrel := path.Join("_quarantine", qname)
		full := filepath.Join(e.root, filepath.FromSlash(qrel))
		if err := writeFile(full, content); err != nil {
			return Entry{}, err
		}
		slog.Warn("Quarantined unsafe path", "path", rel, "quarantine", qrel)
		return Entry{
			Path: qrel, Status: StatusQuarantined,
			Reason: fmt.Sprintf("unsafe path %q", rel), ChunkIdx: tgt.chunkIdx,
		}, nil
	}

	clean := path.Clean(rel)
	full := filepath.Join(e.root, filepath.FromSlash(clean))
	if err := writeFile(full, content); err != nil {
		return Entry{}, err
	}
	slog.Debug("Wrote extracted file", "path", clean, "bytes", len(content))
	return Entry{Path: clean, Status: StatusWritten, ChunkIdx: tgt.chunkIdx}, nil
}

func writeFile(full, content string) error {
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", full, err)
	}
	return nil
}

// isSafeRelPath reports whether p stays inside the output root when
// joined to it
func isSafeRelPath(p string) bool {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "\\") {
		return false
	}
	if len(p) >= 2 && p[1] == ':' { // windows drive prefix
		return false
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return true
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeName(p string) string {
	name := unsafeNameChars.ReplaceAllString(p, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "unnamed"
	}
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return name
}

// extensionForLanguage maps a fence info string to a file extension for
// synthetic block names
func extensionForLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "go", "golang":
		return ".go"
	case "python", "py":
		return ".py"
	case "javascript", "js":
		return ".js"
	case "typescript", "ts":
		return ".ts"
	case "rust":
		return ".rs"
	case "java":
		return ".java"
	case "c":
		return ".c"
	case "cpp", "c++":
		return ".cpp"
	case "ruby", "rb":
		return ".rb"
	case "shell", "bash", "sh":
		return ".sh"
	case "yaml", "yml":
		return ".yaml"
	case "json":
		return ".json"
	case "toml":
		return ".toml"
	case "sql":
		return ".sql"
	case "html":
		return ".html"
	case "css":
		return ".css"
	case "markdown", "md":
		return ".md"
	default:
		return ".txt"
	}
}
