package prompt

import (
	"fmt"
	"strings"

	"github.com/wouteroostervld/sawmill/pkg/planner"
)

// Task modes
const (
	ModeAnalyze = "analyze"
	ModeConvert = "convert"
)

// Task carries the run-level settings the builder needs
type Task struct {
	Mode           string
	TargetLanguage string // required when Mode is ModeConvert
	SystemPrompt   string // optional override of the default system prompt
}

const analyzeSystemPrompt = "Provide a detailed architectural overview of the codebase as markdown, and always include an architecture diagram using mermaid syntax as part of the output."

const convertSystemPromptFmt = "You convert codebases to %s. For every output file, emit a line of the form File: `relative/path` followed by a fenced code block containing that file's complete content. Do not add commentary between files."

// SystemPrompt returns the system prompt for a task, preferring the
// configured override.
func SystemPrompt(task Task) string {
	if task.SystemPrompt != "" {
		return task.SystemPrompt
	}
	if task.Mode == ModeConvert {
		return fmt.Sprintf(convertSystemPromptFmt, task.TargetLanguage)
	}
	return analyzeSystemPrompt
}

// Build renders the request payload for one chunk. Deterministic: the same
// chunk and task always produce identical text. Each file is introduced by
// a marker line the backend is instructed to echo back, so the extractor
// can reattach content to paths.
func Build(chunk planner.Chunk, task Task) string {
	var sb strings.Builder

	switch task.Mode {
	case ModeConvert:
		fmt.Fprintf(&sb, "Convert the following source files to %s.\n", task.TargetLanguage)
		sb.WriteString("For every converted file, output a marker line File: `path` (with the new path and extension) immediately followed by one fenced code block holding the full file content. ")
		sb.WriteString("For inputs marked (part i/n), continue the conversion of that file without repeating already-converted content, and keep the same marker form.\n")
	default:
		sb.WriteString("Analyze the following source files and describe their architecture, responsibilities and relationships as markdown.\n")
	}

	if len(chunk.Files) > 0 {
		sb.WriteString("\n---\n")
	}

	for _, ref := range chunk.Files {
		sb.WriteString("\n")
		sb.WriteString(MarkerLine(ref))
		sb.WriteString("\n")

		fence := FenceFor(ref.Content)
		sb.WriteString(fence)
		sb.WriteString(ref.Language)
		sb.WriteString("\n")
		sb.Write(ref.Content)
		if len(ref.Content) > 0 && ref.Content[len(ref.Content)-1] != '\n' {
			sb.WriteString("\n")
		}
		sb.WriteString(fence)
		sb.WriteString("\n")
	}

	return sb.String()
}

// MarkerLine renders the path marker for a file or fragment
func MarkerLine(ref planner.FileRef) string {
	if ref.IsFragment() {
		return fmt.Sprintf("File: `%s` (part %d/%d)", ref.RelPath, ref.FragmentIndex+1, ref.FragmentCount)
	}
	return fmt.Sprintf("File: `%s`", ref.RelPath)
}

// FenceFor picks a backtick fence strictly longer than any backtick run in
// the content, so embedded fences can never terminate the block early.
// Minimum three backticks.
func FenceFor(content []byte) string {
	longest := 0
	run := 0
	for _, b := range content {
		if b == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}

	n := longest + 1
	if n < 3 {
		n = 3
	}
	return strings.Repeat("`", n)
}
