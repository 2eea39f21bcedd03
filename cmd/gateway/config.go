package main

import (
	"time"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/env"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/prompts"
)

// config holds every environment-derived knob the gateway needs. Recognized
// options are listed in spec.md §6.7; the rest round out the ambient stack
// (cache sizing, conversation bounds, streaming frame sizes) the spec
// leaves to the implementer.
type config struct {
	port               string
	rateLimitPerMinute int
	llmTimeout         time.Duration
	requestTimeout     time.Duration
	corsAllowedOrigins string // comma-separated; empty = permissive dev mode

	voiceMapPath    string
	defaultLanguage string
	synthCacheSize  int
	piperURL        string

	responseCacheCapacity int
	responseCacheTTL      time.Duration

	conversationCapacity int
	conversationIdleTTL  time.Duration
	promptWindowTurns    int

	frameSize int
	hopSize   int
	nMels     int

	llmProvider     string
	llmModel        string
	llmSystemPrompt string
	llmMaxTokens    int
	ollamaURL       string
	ollamaModel     string
	openaiAPIKey    string
	openaiURL       string
	anthropicAPIKey string
	anthropicURL    string

	qdrantURL        string
	qdrantAPIKey     string
	qdrantPoolSize   int
	ragCollection    string
	embeddingModel   string
	vectorSize       int
	ragTopK          int
	ragScoreThresh   float64
	callHistoryColl  string
	ragEnabled       bool
	persistenceReady bool

	traceDBURL string
}

func loadConfig() config {
	qdrantURL := env.Str("QDRANT_URL", "")
	return config{
		port:               env.Str("PORT", "8085"),
		rateLimitPerMinute: env.Int("RATE_LIMIT_PER_MINUTE", 60),
		llmTimeout:         env.Seconds("LLM_TIMEOUT_SECS", 120*time.Second),
		requestTimeout:     env.Seconds("REQUEST_TIMEOUT_SECS", 60*time.Second),
		corsAllowedOrigins: env.Str("CORS_ALLOWED_ORIGINS", ""),

		voiceMapPath:    env.Str("VOICE_MAP_PATH", "voices.json"),
		defaultLanguage: env.Str("DEFAULT_LANGUAGE", "de_DE"),
		synthCacheSize:  env.Int("SYNTH_CACHE_SIZE", 15),
		piperURL:        env.Str("PIPER_URL", "http://localhost:5100"),

		responseCacheCapacity: env.Int("RESPONSE_CACHE_CAPACITY", 500),
		responseCacheTTL:      env.Seconds("RESPONSE_CACHE_TTL_SECS", 3600*time.Second),

		conversationCapacity: env.Int("CONVERSATION_CAPACITY", 100),
		conversationIdleTTL:  env.Seconds("CONVERSATION_IDLE_TTL_SECS", 3600*time.Second),
		promptWindowTurns:    env.Int("PROMPT_WINDOW_TURNS", 6),

		frameSize: env.Int("MEL_FRAME_SIZE", 1024),
		hopSize:   env.Int("MEL_HOP_SIZE", 256),
		nMels:     env.Int("MEL_N_MELS", 80),

		llmProvider:     env.Str("LLM_PROVIDER", "ollama"),
		llmModel:        env.Str("LLM_MODEL", ""),
		llmSystemPrompt: env.Str("LLM_SYSTEM_PROMPT", prompts.DefaultSystem),
		llmMaxTokens:    env.Int("LLM_MAX_TOKENS", 512),
		ollamaURL:       env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:     env.Str("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey:    env.Str("OPENAI_API_KEY", ""),
		openaiURL:       env.Str("OPENAI_URL", "https://api.openai.com"),
		anthropicAPIKey: env.Str("ANTHROPIC_API_KEY", ""),
		anthropicURL:    env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),

		qdrantURL:      qdrantURL,
		qdrantAPIKey:   env.Str("QDRANT_API_KEY", ""),
		qdrantPoolSize: env.Int("QDRANT_POOL_SIZE", 10),
		ragCollection:  env.Str("RAG_COLLECTION", "knowledge_base"),
		embeddingModel: env.Str("EMBEDDING_MODEL", "nomic-embed-text"),
		vectorSize:     env.Int("VECTOR_SIZE", 768),
		ragTopK:        env.Int("RAG_TOP_K", 3),
		ragScoreThresh: env.Float("RAG_SCORE_THRESHOLD", 0.7),
		callHistoryColl: env.Str("CALL_HISTORY_COLLECTION", "call_history"),
		ragEnabled:       qdrantURL != "",
		persistenceReady: qdrantURL != "",

		traceDBURL: env.Str("TRACE_DB_URL", ""),
	}
}
