package config

// GlobalConfig represents the main configuration file at ~/.sawmill/config.yaml
type GlobalConfig struct {
	Version       string              `yaml:"version"`
	ActiveProfile string              `yaml:"active_profile"`
	Profiles      map[string]*Profile `yaml:"profiles"`
}

// Profile represents a single configuration profile with all settings
type Profile struct {
	// Task settings
	Mode           string `yaml:"mode"`                      // "analyze" or "convert"
	TargetLanguage string `yaml:"target_language,omitempty"` // required when mode is "convert"
	SystemPrompt   string `yaml:"system_prompt,omitempty"`   // optional override of the built-in instructions

	// Scan filtering
	Exclude      []string `yaml:"exclude"`                 // Directory patterns to skip
	Blacklist    []string `yaml:"blacklist"`               // Reject patterns (regex on relative paths, applied first)
	Whitelist    []string `yaml:"whitelist"`               // Exception patterns (override blacklist)
	UseGitignore *bool    `yaml:"use_gitignore,omitempty"` // honor .gitignore rules (default: true)

	// Chunking settings
	SizeBudget int    `yaml:"size_budget"`         // max estimated size per chunk
	SizeUnit   string `yaml:"size_unit,omitempty"` // "bytes" or "tokens" (default: tokens)
	Overlap    int    `yaml:"overlap"`             // trailing bytes repeated into the next fragment

	// LLM Provider settings
	LLMProvider    string `yaml:"llm_provider,omitempty"` // "ollama", "openai" or "anthropic"
	LLMBaseURL     string `yaml:"llm_base_url,omitempty"`
	LLMAPIKey      string `yaml:"llm_api_key,omitempty"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // per-call timeout

	// Orchestrator settings
	Concurrency   int     `yaml:"concurrency,omitempty"`     // parallel backend calls
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"` // token-bucket refill rate
	RateBurst     int     `yaml:"rate_burst,omitempty"`      // token-bucket capacity
	MaxAttempts   int     `yaml:"max_attempts,omitempty"`    // retry cap for transient failures
	BackoffBaseMS int     `yaml:"backoff_base_ms,omitempty"` // first retry delay
	BackoffCapMS  int     `yaml:"backoff_cap_ms,omitempty"`  // backoff ceiling
	AbortOnFatal  bool    `yaml:"abort_on_fatal,omitempty"`  // stop the run on the first fatal chunk

	// Output settings
	Document       string `yaml:"document,omitempty"`        // assembled document path
	OutputDir      string `yaml:"output_dir,omitempty"`      // reconstructed file tree root
	ConflictPolicy string `yaml:"conflict_policy,omitempty"` // "first-wins" or "fail-fast"
	ExtractBlocks  *bool  `yaml:"extract_blocks,omitempty"`  // run the extractor after assembly

	LogLevel string `yaml:"log_level,omitempty"` // debug, info, warn, error
}

// LocalConfig represents a project-local .sawmill.yaml file.
// A local config may only narrow the scan (add excludes and blacklist
// entries) and redirect output; it can never widen scope or change the
// provider.
type LocalConfig struct {
	Exclude   []string `yaml:"exclude,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty"`
	OutputDir string   `yaml:"output_dir,omitempty"`
	Document  string   `yaml:"document,omitempty"`
}

// MergedConfig represents the final runtime configuration after merging
// global profile + local overrides. It is immutable for the run: every
// component receives it (or a slice of it) at construction.
type MergedConfig struct {
	// Task
	Mode           string
	TargetLanguage string
	SystemPrompt   string

	// Merged filters
	Exclude      []string
	Blacklist    []string
	Whitelist    []string // Global only, never modified by local
	UseGitignore bool

	// Chunking
	SizeBudget int
	SizeUnit   string
	Overlap    int

	// Provider
	LLMProvider    string
	LLMBaseURL     string
	LLMAPIKey      string
	Model          string
	TimeoutSeconds int

	// Orchestrator
	Concurrency   int
	RatePerSecond float64
	RateBurst     int
	MaxAttempts   int
	BackoffBaseMS int
	BackoffCapMS  int
	AbortOnFatal  bool

	// Output
	Document       string
	OutputDir      string
	ConflictPolicy string
	ExtractBlocks  bool

	LogLevel string

	// Metadata for tracking
	LocalConfigPath string // Path to the .sawmill.yaml that was used (empty if none)
	ProfileName     string // Name of the active profile
}

// Task modes
const (
	ModeAnalyze = "analyze"
	ModeConvert = "convert"
)

// Size units
const (
	UnitBytes  = "bytes"
	UnitTokens = "tokens"
)

// Conflict policies
const (
	ConflictFirstWins = "first-wins"
	ConflictFailFast  = "fail-fast"
)
