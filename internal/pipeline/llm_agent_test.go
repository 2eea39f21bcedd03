package pipeline

import (
	"context"
	"testing"
)

// stubLLMChatClient is a test double for LLMChatClient that records the
// arguments it was called with and returns a canned result.
type stubLLMChatClient struct {
	gotRAGContext   string
	gotSystemPrompt string
	gotModel        string
	result          *LLMResult
}

func (s *stubLLMChatClient) Chat(ctx context.Context, messages []Message, ragContext, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	s.gotRAGContext = ragContext
	s.gotSystemPrompt = systemPrompt
	s.gotModel = model
	return s.result, nil
}

func TestAgentLLMChatForwardsRAGContextToRawClient(t *testing.T) {
	stub := &stubLLMChatClient{result: &LLMResult{Text: "answer"}}
	agent := NewAgentLLM("ollama", 256)
	agent.RegisterRaw("ollama", stub, "llama3.2:3b")

	messages := []Message{{Role: "user", Content: "hello"}}
	result, err := agent.Chat(context.Background(), messages, "retrieved passage", "system prompt", "", "ollama", nil)
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if result.Text != "answer" {
		t.Errorf("Text = %q, want %q", result.Text, "answer")
	}
	if stub.gotRAGContext != "retrieved passage" {
		t.Errorf("ragContext forwarded = %q, want %q", stub.gotRAGContext, "retrieved passage")
	}
	if stub.gotSystemPrompt != "system prompt" {
		t.Errorf("systemPrompt forwarded = %q, want %q", stub.gotSystemPrompt, "system prompt")
	}
	if stub.gotModel != "llama3.2:3b" {
		t.Errorf("model forwarded = %q, want %q (RegisterRaw default)", stub.gotModel, "llama3.2:3b")
	}
}

func TestAgentLLMChatRawClientModelOverride(t *testing.T) {
	stub := &stubLLMChatClient{result: &LLMResult{Text: "answer"}}
	agent := NewAgentLLM("ollama", 256)
	agent.RegisterRaw("ollama", stub, "llama3.2:3b")

	_, err := agent.Chat(context.Background(), nil, "", "", "llama3.2:1b", "ollama", nil)
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if stub.gotModel != "llama3.2:1b" {
		t.Errorf("model forwarded = %q, want caller override %q", stub.gotModel, "llama3.2:1b")
	}
}

func TestAgentLLMChatUnknownEngineErrors(t *testing.T) {
	agent := NewAgentLLM("ollama", 256)
	agent.RegisterRaw("ollama", &stubLLMChatClient{result: &LLMResult{}}, "llama3.2:3b")

	_, err := agent.Chat(context.Background(), nil, "", "", "", "nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for an engine with no registered provider or raw client, got nil")
	}
}

func TestAgentLLMEnginesAndHas(t *testing.T) {
	agent := NewAgentLLM("ollama", 256)
	if agent.Has("ollama") {
		t.Fatal("Has(\"ollama\") = true before registration, want false")
	}
	agent.RegisterRaw("ollama", &stubLLMChatClient{result: &LLMResult{}}, "llama3.2:3b")

	if !agent.Has("ollama") {
		t.Error("Has(\"ollama\") = false after RegisterRaw, want true")
	}
	if agent.Has("missing") {
		t.Error("Has(\"missing\") = true, want false")
	}
	engines := agent.Engines()
	if len(engines) != 1 || engines[0] != "ollama" {
		t.Errorf("Engines() = %v, want [ollama]", engines)
	}
}

func TestAgentEngineClientPinsEngine(t *testing.T) {
	stub := &stubLLMChatClient{result: &LLMResult{Text: "pinned"}}
	agent := NewAgentLLM("fallback", 256)
	agent.RegisterRaw("openai-agent", stub, "gpt-4o")

	client := NewAgentEngineClient(agent, "openai-agent")
	result, err := client.Chat(context.Background(), nil, "ctx", "sys", "", nil)
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if result.Text != "pinned" {
		t.Errorf("Text = %q, want %q", result.Text, "pinned")
	}
	if stub.gotRAGContext != "ctx" {
		t.Errorf("ragContext forwarded = %q, want %q", stub.gotRAGContext, "ctx")
	}
}
