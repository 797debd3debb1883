package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a profile leaves a setting unset
const (
	DefaultSizeBudget     = 100000
	DefaultSizeUnit       = UnitTokens
	DefaultOverlap        = 256
	DefaultConcurrency    = 4
	DefaultRatePerSecond  = 2.0
	DefaultRateBurst      = 4
	DefaultMaxAttempts    = 3
	DefaultBackoffBaseMS  = 500
	DefaultBackoffCapMS   = 30000
	DefaultTimeoutSeconds = 120
	DefaultDocument       = "sawmill.md"
	DefaultOutputDir      = "sawmill_out"
	DefaultLogLevel       = "info"
)

// LoadGlobalConfigFromPath loads global config from a specific path using provided FileSystem
func LoadGlobalConfigFromPath(path string, fs FileSystem) (*GlobalConfig, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate active profile exists
	if config.ActiveProfile == "" {
		return nil, fmt.Errorf("active_profile not specified in config")
	}

	if _, ok := config.Profiles[config.ActiveProfile]; !ok {
		return nil, fmt.Errorf("active profile %s not found in config", config.ActiveProfile)
	}

	return &config, nil
}

// FindLocalConfigWithFS walks up from startDir to find the nearest .sawmill.yaml file.
// Returns the path to the config file, or empty string if not found.
func FindLocalConfigWithFS(startDir string, fs FileSystem) (string, error) {
	absDir, err := fs.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		configPath := filepath.Join(currentDir, ".sawmill.yaml")

		if _, err := fs.Stat(configPath); err == nil {
			return configPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", nil
}

// LoadLocalConfigWithFS loads and validates a local .sawmill.yaml file
func LoadLocalConfigWithFS(path string, fs FileSystem) (*LocalConfig, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local config: %w", err)
	}

	var config LocalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse local config: %w", err)
	}

	return &config, nil
}

// MergeConfig merges the active global profile with an optional local
// config. The local config may only add excludes and blacklist entries and
// redirect output; everything else comes from the profile.
func MergeConfig(global *GlobalConfig, local *LocalConfig, localConfigDir string) (*MergedConfig, error) {
	profile, ok := global.Profiles[global.ActiveProfile]
	if !ok {
		return nil, fmt.Errorf("active profile %s not found", global.ActiveProfile)
	}

	merged := &MergedConfig{
		Mode:           profile.Mode,
		TargetLanguage: profile.TargetLanguage,
		SystemPrompt:   profile.SystemPrompt,

		Whitelist:    profile.Whitelist,
		UseGitignore: profile.UseGitignore == nil || *profile.UseGitignore,

		SizeBudget: profile.SizeBudget,
		SizeUnit:   profile.SizeUnit,
		Overlap:    profile.Overlap,

		LLMProvider:    profile.LLMProvider,
		LLMBaseURL:     profile.LLMBaseURL,
		LLMAPIKey:      profile.LLMAPIKey,
		Model:          profile.Model,
		TimeoutSeconds: profile.TimeoutSeconds,

		Concurrency:   profile.Concurrency,
		RatePerSecond: profile.RatePerSecond,
		RateBurst:     profile.RateBurst,
		MaxAttempts:   profile.MaxAttempts,
		BackoffBaseMS: profile.BackoffBaseMS,
		BackoffCapMS:  profile.BackoffCapMS,
		AbortOnFatal:  profile.AbortOnFatal,

		Document:       profile.Document,
		OutputDir:      profile.OutputDir,
		ConflictPolicy: profile.ConflictPolicy,
		ExtractBlocks:  extractBlocksDefault(profile),

		LogLevel:    profile.LogLevel,
		ProfileName: global.ActiveProfile,
	}

	// Merge exclude (global + local)
	merged.Exclude = append([]string{}, profile.Exclude...)
	merged.Blacklist = append([]string{}, profile.Blacklist...)

	if local != nil {
		merged.Exclude = append(merged.Exclude, local.Exclude...)
		merged.Blacklist = append(merged.Blacklist, local.Blacklist...)

		if local.OutputDir != "" {
			resolved, err := ResolveRelativePath(localConfigDir, local.OutputDir)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve local output_dir: %w", err)
			}
			merged.OutputDir = resolved
		}
		if local.Document != "" {
			resolved, err := ResolveRelativePath(localConfigDir, local.Document)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve local document: %w", err)
			}
			merged.Document = resolved
		}
		if local.OutputDir != "" || local.Document != "" || len(local.Exclude) > 0 || len(local.Blacklist) > 0 {
			merged.LocalConfigPath = filepath.Join(localConfigDir, ".sawmill.yaml")
		}
	}

	applyDefaults(merged)

	if err := Validate(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// extractBlocksDefault: convert runs reconstruct files unless disabled;
// analyze runs only extract when asked to
func extractBlocksDefault(p *Profile) bool {
	if p.ExtractBlocks != nil {
		return *p.ExtractBlocks
	}
	return p.Mode == ModeConvert
}

func applyDefaults(c *MergedConfig) {
	if c.SizeBudget == 0 {
		c.SizeBudget = DefaultSizeBudget
	}
	if c.SizeUnit == "" {
		c.SizeUnit = DefaultSizeUnit
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultOverlap
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBaseMS == 0 {
		c.BackoffBaseMS = DefaultBackoffBaseMS
	}
	if c.BackoffCapMS == 0 {
		c.BackoffCapMS = DefaultBackoffCapMS
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Document == "" {
		c.Document = DefaultDocument
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = ConflictFirstWins
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks a merged config for contradictions before a run starts
func Validate(c *MergedConfig) error {
	switch c.Mode {
	case ModeAnalyze, ModeConvert:
	case "":
		return fmt.Errorf("mode not specified (want %q or %q)", ModeAnalyze, ModeConvert)
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.Mode == ModeConvert && c.TargetLanguage == "" {
		return fmt.Errorf("target_language is required when mode is %q", ModeConvert)
	}

	switch c.SizeUnit {
	case UnitBytes, UnitTokens:
	default:
		return fmt.Errorf("unknown size_unit %q", c.SizeUnit)
	}

	if c.SizeBudget <= 0 {
		return fmt.Errorf("size_budget must be positive, got %d", c.SizeBudget)
	}

	if c.Overlap < 0 {
		return fmt.Errorf("overlap must not be negative, got %d", c.Overlap)
	}

	switch c.ConflictPolicy {
	case ConflictFirstWins, ConflictFailFast:
	default:
		return fmt.Errorf("unknown conflict_policy %q", c.ConflictPolicy)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}

	return nil
}
