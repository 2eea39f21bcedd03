package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/prompts"
)

// Message is one turn of a conversation's prompt window.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// LLMChatClient produces streaming chat completions from a prompt window.
// messages is the ordered prompt window (prior turns plus the current user
// turn as the last element); ragContext, if non-empty, is folded in as
// additional system context ahead of the window.
type LLMChatClient interface {
	Chat(ctx context.Context, messages []Message, ragContext, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error)
}

// FormatTranscript renders a prompt window as a plain "Role: content" transcript,
// for providers that take a single input string rather than a message list.
func FormatTranscript(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// LLMResult holds the complete LLM response with timing.
type LLMResult struct {
	Text               string  `json:"text"`
	Thinking           string  `json:"thinking,omitempty"`
	LatencyMs          float64 `json:"latency_ms"`
	TimeToFirstTokenMs float64 `json:"ttft_ms"`
}

// TokenCallback is called for each streamed token.
type TokenCallback func(token string)

// LLMRouter dispatches to the correct LLM backend based on engine name.
type LLMRouter struct {
	*Router[LLMChatClient]
}

// NewLLMRouter creates a router with registered LLM backends and a fallback default.
func NewLLMRouter(backends map[string]LLMChatClient, fallback string) *LLMRouter {
	return &LLMRouter{Router: NewRouter(backends, fallback)}
}

// Chat routes to the correct backend and streams a chat completion.
func (r *LLMRouter) Chat(ctx context.Context, messages []Message, ragContext, systemPrompt, model, engine string, onToken TokenCallback) (*LLMResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.Chat(ctx, messages, ragContext, systemPrompt, model, onToken)
}

// boundRouterLLM pins an LLMRouter to one engine so it satisfies
// LLMChatClient, for collaborators (the Conversation Manager) that treat
// the LLM as a single abstract provider rather than a per-call choice.
type boundRouterLLM struct {
	router *LLMRouter
	engine string
}

// BindEngine fixes engine as the router's effective backend, returning an
// LLMChatClient the Conversation Manager can hold without knowing routing
// exists underneath.
func BindEngine(router *LLMRouter, engine string) LLMChatClient {
	return &boundRouterLLM{router: router, engine: engine}
}

func (b *boundRouterLLM) Chat(ctx context.Context, messages []Message, ragContext, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	return b.router.Chat(ctx, messages, ragContext, systemPrompt, model, b.engine, onToken)
}

// --- Ollama backend ---

// OllamaLLMClient streams chat completions from Ollama.
type OllamaLLMClient struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

// NewOllamaLLMClient creates an Ollama HTTP client.
func NewOllamaLLMClient(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaLLMClient {
	return &OllamaLLMClient{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

// Chat sends the prompt window to Ollama and streams the response.
func (c *OllamaLLMClient) Chat(ctx context.Context, messages []Message, ragContext, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	start := time.Now()

	resp, err := c.postChatRequest(ctx, messages, ragContext, systemPrompt, model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	sr := c.consumeStream(resp, onToken)

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	ttft := float64(0)
	if !sr.ttft.IsZero() {
		ttft = float64(sr.ttft.Sub(start).Milliseconds())
	}

	return &LLMResult{
		Text:               sr.text,
		Thinking:           sr.thinking,
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttft,
	}, nil
}

func (c *OllamaLLMClient) postChatRequest(ctx context.Context, window []Message, ragContext, systemPrompt, model string) (*http.Response, error) {
	sysPrompt := c.systemPrompt
	if systemPrompt != "" {
		sysPrompt = systemPrompt
	}
	useModel := c.model
	if model != "" {
		useModel = model
	}
	msgs := []ollamaMessage{
		{Role: "system", Content: sysPrompt},
	}
	if ragContext != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: prompts.RAGContext(ragContext)})
	}
	for _, m := range window {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	reqBody := ollamaRequest{
		Model:    useModel,
		Stream:   true,
		Options:  ollamaOptions{NumPredict: c.maxTokens},
		Messages: msgs,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}

	return resp, nil
}

type streamResult struct {
	text     string
	thinking string
	ttft     time.Time
}

func (c *OllamaLLMClient) consumeStream(resp *http.Response, onToken TokenCallback) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		chunk := c.parseChunk(scanner.Bytes())
		if chunk == nil {
			return sr
		}
		sr = applyChunk(chunk, sr, onToken)
	}

	return sr
}

func applyChunk(chunk *parsedChunk, sr streamResult, onToken TokenCallback) streamResult {
	if chunk.Thinking != "" {
		sr.thinking += chunk.Thinking
		return sr
	}
	if chunk.Content == "" {
		return sr
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(chunk.Content)
	}
	sr.text += chunk.Content
	return sr
}

type parsedChunk struct {
	Content  string
	Thinking string
	Done     bool
}

func (c *OllamaLLMClient) parseChunk(data []byte) *parsedChunk {
	var chunk ollamaStreamChunk
	if json.Unmarshal(data, &chunk) != nil {
		return &parsedChunk{}
	}
	if chunk.Done {
		return nil
	}
	return &parsedChunk{Content: chunk.Message.Content, Thinking: chunk.Message.Thinking}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
