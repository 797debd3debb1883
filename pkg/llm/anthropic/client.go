package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/wouteroostervld/sawmill/pkg/llm"
)

const defaultAPIURL = "https://api.anthropic.com/v1/messages"

// Config for the Anthropic messages API client
type Config struct {
	APIKey    string
	Model     string
	System    string        // system prompt, bound at construction
	MaxTokens int           // response token cap
	BaseURL   string        // override for testing
	Timeout   time.Duration // HTTP timeout
}

// Client wraps the Anthropic messages API behind the Backend contract
type Client struct {
	apiKey    string
	model     string
	system    string
	maxTokens int
	apiURL    string
	client    *http.Client
}

var _ llm.Backend = (*Client)(nil)

// NewClient creates a new Anthropic API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultAPIURL
	}
	return &Client{
		apiKey:    config.APIKey,
		model:     config.Model,
		system:    config.System,
		maxTokens: config.MaxTokens,
		apiURL:    config.BaseURL,
		client:    &http.Client{Timeout: config.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call sends the payload as a single user message and returns the text reply.
func (c *Client) Call(ctx context.Context, payload string) (string, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.system,
		Messages:  []message{{Role: "user", Content: payload}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", llm.Fatalf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", llm.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &llm.TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.TransientError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			// overloaded_error is Anthropic's throttling signal
			return "", llm.ClassifyHTTPStatus(resp.StatusCode, errResp.Error.Type+": "+errResp.Error.Message)
		}
		return "", llm.ClassifyHTTPStatus(resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", llm.Fatalf("unmarshal response: %v", err)
	}

	if len(apiResp.Content) == 0 {
		return "", llm.Transientf("empty response content")
	}

	return apiResp.Content[0].Text, nil
}
