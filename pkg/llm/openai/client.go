package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wouteroostervld/sawmill/pkg/llm"
)

// Config for OpenAI-compatible API client
type Config struct {
	BaseURL string        // API base URL (e.g., "https://openrouter.ai/v1")
	APIKey  string        // API key for authentication
	Model   string        // model name, bound at construction
	System  string        // system prompt, bound at construction
	Timeout time.Duration // HTTP timeout
}

// Client wraps an OpenAI-compatible chat/completions API behind the
// Backend contract. Works against OpenAI, OpenRouter and friends.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	system     string
	httpClient *http.Client
}

var _ llm.Backend = (*Client)(nil)

// NewClient creates a new OpenAI API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		model:      config.Model,
		system:     config.System,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Call sends the payload through chat/completions and returns the reply text.
func (c *Client) Call(ctx context.Context, payload string) (string, error) {
	messages := []Message{}
	if c.system != "" {
		messages = append(messages, Message{Role: "system", Content: c.system})
	}
	messages = append(messages, Message{Role: "user", Content: payload})

	reqBody := struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", llm.Fatalf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", llm.Fatalf("create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &llm.TransientError{Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", &llm.TransientError{Err: fmt.Errorf("read body: %w", readErr)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.ClassifyHTTPStatus(resp.StatusCode, preview(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", llm.Fatalf("decode response (status %d): %v. Body preview: %s", resp.StatusCode, err, preview(bodyBytes))
	}

	if apiResp.Error.Message != "" {
		return "", llm.Fatalf("API error: %s (%s)", apiResp.Error.Message, apiResp.Error.Type)
	}

	if len(apiResp.Choices) == 0 {
		return "", llm.Transientf("no response from API")
	}

	return apiResp.Choices[0].Message.Content, nil
}

func preview(body []byte) string {
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
