package openai

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
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth header = %q", auth)
		}

		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "converted output"}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-test", System: "convert"})
	got, err := client.Call(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "converted output" {
		t.Errorf("Call = %q", got)
	}
}

func TestCallNoSystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, Model: "m"})
	if _, err := client.Call(context.Background(), "p"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestCallEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, Model: "m"})
	_, err := client.Call(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if !llm.IsTransient(err) {
		t.Errorf("empty choices should be transient, got %v", err)
	}
}

func TestCallAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid model", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, Model: "m"})
	_, err := client.Call(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.IsTransient(err) {
		t.Errorf("API error envelope should be fatal, got %v", err)
	}
}

func TestCallRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, Model: "m"})
	_, err := client.Call(context.Background(), "p")
	if !llm.IsTransient(err) {
		t.Errorf("429 should be transient, got %v", err)
	}
}
