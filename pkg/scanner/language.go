package scanner

import (
	"path/filepath"
	"strings"
)

// extension -> language tag used in path markers and code fences
var languageByExt = map[string]string{
	".c":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cs":    "csharp",
	".css":   "css",
	".go":    "go",
	".h":     "c",
	".hpp":   "cpp",
	".html":  "html",
	".java":  "java",
	".js":    "javascript",
	".json":  "json",
	".jsx":   "jsx",
	".kt":    "kotlin",
	".lua":   "lua",
	".md":    "markdown",
	".php":   "php",
	".pl":    "perl",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".scala": "scala",
	".sh":    "bash",
	".sql":   "sql",
	".swift": "swift",
	".toml":  "toml",
	".ts":    "typescript",
	".tsx":   "tsx",
	".xml":   "xml",
	".yaml":  "yaml",
	".yml":   "yaml",
	".zig":   "zig",
}

// LanguageForPath derives a language tag from the file extension.
// Unknown extensions fall back to the bare extension; extensionless files
// get no tag. Files are never parsed, only tagged.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}
