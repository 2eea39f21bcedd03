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

func TestOpenAICompletionsClientChat(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"text\":\"Hi there\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewOpenAICompletionsClient("test-key", srv.URL, "gpt-4o-mini", 128, 2)

	messages := []Message{{Role: "user", Content: "What's the weather?"}}
	var tokens []string
	result, err := client.Chat(context.Background(), messages, "it is sunny today", "You are helpful.", "", func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if result.Text != "Hi there" {
		t.Errorf("Text = %q, want %q", result.Text, "Hi there")
	}
	if len(tokens) != 1 || tokens[0] != "Hi there" {
		t.Errorf("onToken calls = %v, want [\"Hi there\"]", tokens)
	}

	var reqBody struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	}
	if err := json.Unmarshal([]byte(gotBody), &reqBody); err != nil {
		t.Fatalf("request body not valid JSON: %v", err)
	}
	if !strings.Contains(reqBody.Prompt, "Relevant context from knowledge base:\nit is sunny today") {
		t.Errorf("prompt does not include RAG context, got: %q", reqBody.Prompt)
	}
	if reqBody.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want %q", reqBody.Model, "gpt-4o-mini")
	}
}

func TestOpenAICompletionsClientChatWithoutRAGContext(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"text\":\"ok\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewOpenAICompletionsClient("test-key", srv.URL, "gpt-4o-mini", 128, 2)
	messages := []Message{{Role: "user", Content: "hi"}}
	if _, err := client.Chat(context.Background(), messages, "", "System.", "", nil); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if strings.Contains(gotBody, "Relevant context from knowledge base") {
		t.Errorf("prompt should not include RAG context when ragContext is empty, got: %q", gotBody)
	}
}

func TestOpenAICompletionsClientChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "server exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOpenAICompletionsClient("test-key", srv.URL, "gpt-4o-mini", 128, 2)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", "", "", nil)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}
