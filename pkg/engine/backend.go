package engine

import (
	"fmt"
	"time"

	"github.com/wouteroostervld/sawmill/pkg/config"
	"github.com/wouteroostervld/sawmill/pkg/llm"
	"github.com/wouteroostervld/sawmill/pkg/llm/anthropic"
	"github.com/wouteroostervld/sawmill/pkg/llm/ollama"
	"github.com/wouteroostervld/sawmill/pkg/llm/openai"
	"github.com/wouteroostervld/sawmill/pkg/prompt"
)

// buildBackend constructs the configured provider client. The system
// prompt is bound at construction so every call carries it.
func buildBackend(cfg *config.MergedConfig) (llm.Backend, error) {
	system := prompt.SystemPrompt(prompt.Task{
		Mode:           cfg.Mode,
		TargetLanguage: cfg.TargetLanguage,
		SystemPrompt:   cfg.SystemPrompt,
	})
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.LLMProvider {
	case "ollama", "":
		return ollama.NewClient(&ollama.Config{
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.Model,
			System:  system,
			Timeout: timeout,
		}), nil
	case "openai":
		return openai.NewClient(&openai.Config{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.Model,
			System:  system,
			Timeout: timeout,
		}), nil
	case "anthropic":
		return anthropic.NewClient(&anthropic.Config{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.Model,
			System:  system,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLMProvider)
	}
}
