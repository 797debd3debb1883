package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wouteroostervld/sawmill/pkg/llm"
)

func TestCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("x-api-key"); key != "sk-ant-test" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("anthropic-version = %q", v)
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "claude-test" || req.System != "analyze" {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "the overview"}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	client := NewClient(&Config{APIKey: "sk-ant-test", Model: "claude-test", System: "analyze", BaseURL: server.URL})
	got, err := client.Call(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "the overview" {
		t.Errorf("Call = %q", got)
	}
}

func TestCallErrorEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		transient bool
	}{
		{"overloaded", http.StatusServiceUnavailable, "overloaded_error", true},
		{"rate limit", http.StatusTooManyRequests, "rate_limit_error", true},
		{"auth failure", http.StatusUnauthorized, "authentication_error", false},
		{"bad request", http.StatusBadRequest, "invalid_request_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"type": tt.errType, "message": "details"},
				})
			}))
			defer server.Close()

			client := NewClient(&Config{APIKey: "k", Model: "m", BaseURL: server.URL})
			_, err := client.Call(context.Background(), "p")
			if err == nil {
				t.Fatal("expected error")
			}
			if llm.IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v (err %v)", llm.IsTransient(err), tt.transient, err)
			}
		})
	}
}

func TestCallEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer server.Close()

	client := NewClient(&Config{APIKey: "k", Model: "m", BaseURL: server.URL})
	_, err := client.Call(context.Background(), "p")
	if !llm.IsTransient(err) {
		t.Errorf("empty content should be transient, got %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(&Config{APIKey: "k", Model: "m"})
	if client.apiURL != defaultAPIURL {
		t.Errorf("apiURL = %q", client.apiURL)
	}
	if client.maxTokens != 8192 {
		t.Errorf("maxTokens = %d", client.maxTokens)
	}
}
