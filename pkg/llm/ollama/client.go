package ollama

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

// Config for Ollama client
type Config struct {
	BaseURL string        // e.g. "http://localhost:11434"
	Model   string        // model name, bound at construction
	System  string        // system prompt, bound at construction
	Timeout time.Duration // HTTP timeout
}

// Client wraps the Ollama HTTP API behind the Backend contract
type Client struct {
	baseURL    string
	model      string
	system     string
	httpClient *http.Client
}

// Compile-time check
var _ llm.Backend = (*Client)(nil)

// NewClient creates a new Ollama API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		model:      config.Model,
		system:     config.System,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// GenerateRequest is the /api/generate request body
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	System string `json:"system,omitempty"`
}

// GenerateResponse is the /api/generate response body
type GenerateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

// Call sends the payload through /api/generate and returns the completion text.
func (c *Client) Call(ctx context.Context, payload string) (string, error) {
	req := GenerateRequest{Model: c.model, Prompt: payload, Stream: false, System: c.system}

	data, err := json.Marshal(req)
	if err != nil {
		return "", llm.Fatalf("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", llm.Fatalf("create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Connection refused, DNS hiccup, timeout: all worth retrying.
		return "", &llm.TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.TransientError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.ClassifyHTTPStatus(resp.StatusCode, preview(body))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", llm.Fatalf("decode response: %v. Body preview: %s", err, preview(body))
	}

	return genResp.Response, nil
}

// Ping checks if the Ollama server is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

func preview(body []byte) string {
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
