// Package assembler merges per-chunk LLM responses into one document.
// Responses arrive in any completion order; output follows chunk sequence.
package assembler

import (
	"fmt"
	"sort"
	"strings"
)

// ChunkResult is one chunk's contribution to the document
type ChunkResult struct {
	ChunkIndex int
	Text       string
	Failed     bool
	ErrMsg     string
	Paths      []string // source files covered by the chunk, for placeholders
}

// Assemble concatenates chunk results in ascending chunk order. Failed
// chunks become a visible placeholder so the document records the gap
// instead of silently omitting files.
func Assemble(results []ChunkResult) string {
	sorted := make([]ChunkResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})

	var b strings.Builder
	for _, r := range sorted {
		if r.Failed {
			b.WriteString(failedPlaceholder(r))
		} else {
			b.WriteString(strings.TrimRight(r.Text, "\n"))
		}
		b.WriteString("\n\n")
	}

	return FormatMarkdown(b.String())
}

func failedPlaceholder(r ChunkResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- sawmill:failed-chunk index=%d", r.ChunkIndex)
	if r.ErrMsg != "" {
		fmt.Fprintf(&b, " error=%q", r.ErrMsg)
	}
	b.WriteString(" -->\n")
	if len(r.Paths) > 0 {
		b.WriteString("<!-- files not covered:\n")
		for _, p := range r.Paths {
			fmt.Fprintf(&b, "  %s\n", p)
		}
		b.WriteString("-->")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatMarkdown squeezes runs of blank lines down to one and guarantees
// a single trailing newline. Fenced code blocks pass through untouched so
// reconstructed file content is never altered.
func FormatMarkdown(text string) string {
	lines := strings.Split(text, "\n")

	var out []string
	blank := false
	fence := "" // opening backtick run while inside a code block
	for _, line := range lines {
		if fence != "" {
			out = append(out, line)
			if isClosingFence(line, fence) {
				fence = ""
				blank = false
			}
			continue
		}

		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, trimmed)

		if run := leadingBackticks(trimmed); len(run) >= 3 {
			fence = run
		}
	}

	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func leadingBackticks(line string) string {
	i := 0
	for i < len(line) && line[i] == '`' {
		i++
	}
	return line[:i]
}

func isClosingFence(line, fence string) bool {
	trimmed := strings.TrimRight(line, " \t")
	run := leadingBackticks(trimmed)
	return len(run) >= len(fence) && run == trimmed
}
