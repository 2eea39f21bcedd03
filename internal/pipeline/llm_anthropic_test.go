package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicLLMClientChat(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: content_block_delta\n")
		io.WriteString(w, "data: {\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello!\"}}\n\n")
		io.WriteString(w, "event: message_stop\n")
		io.WriteString(w, "data: {}\n\n")
	}))
	defer srv.Close()

	client := NewAnthropicLLMClient("test-key", srv.URL, "claude-3-5-sonnet", 256, 2)

	messages := []Message{{Role: "user", Content: "Hi"}}
	var tokens []string
	result, err := client.Chat(context.Background(), messages, "background facts", "Be terse.", "", func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if result.Text != "Hello!" {
		t.Errorf("Text = %q, want %q", result.Text, "Hello!")
	}
	if len(tokens) != 1 || tokens[0] != "Hello!" {
		t.Errorf("onToken calls = %v, want [\"Hello!\"]", tokens)
	}

	var reqBody struct {
		System string `json:"system"`
		Model  string `json:"model"`
	}
	if err := json.Unmarshal([]byte(gotBody), &reqBody); err != nil {
		t.Fatalf("request body not valid JSON: %v", err)
	}
	if !strings.Contains(reqBody.System, "Relevant context from knowledge base:\nbackground facts") {
		t.Errorf("system prompt does not include RAG context, got: %q", reqBody.System)
	}
	if reqBody.Model != "claude-3-5-sonnet" {
		t.Errorf("model = %q, want %q", reqBody.Model, "claude-3-5-sonnet")
	}
}

func TestAnthropicLLMClientChatWithoutRAGContext(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_stop\n")
		io.WriteString(w, "data: {}\n\n")
	}))
	defer srv.Close()

	client := NewAnthropicLLMClient("test-key", srv.URL, "claude-3-5-sonnet", 256, 2)
	messages := []Message{{Role: "user", Content: "hi"}}
	if _, err := client.Chat(context.Background(), messages, "", "Be terse.", "", nil); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if strings.Contains(gotBody, "Relevant context from knowledge base") {
		t.Errorf("system prompt should not include RAG context when ragContext is empty, got: %q", gotBody)
	}
}

func TestAnthropicLLMClientChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "server exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewAnthropicLLMClient("test-key", srv.URL, "claude-3-5-sonnet", 256, 2)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", "", "", nil)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}
