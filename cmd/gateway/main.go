package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"
	"golang.org/x/time/rate"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/cache"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/conversation"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/pipeline"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/registry"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/synth"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/trace"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	voiceRegistry, err := registry.Load(cfg.voiceMapPath, cfg.defaultLanguage)
	if err != nil {
		slog.Error("load voice map", "error", err, "path", cfg.voiceMapPath)
		os.Exit(1)
	}

	synthCache := synth.NewCache(cfg.synthCacheSize, piperLoader(cfg.piperURL))
	responseCache := cache.New(cfg.responseCacheCapacity, cfg.responseCacheTTL)

	llmRouter, llmEngine := buildLLMRouter(cfg)

	if cfg.ragEnabled {
		ensureRAGCollections(cfg)
	}

	var traceStore *trace.Store
	if cfg.traceDBURL != "" {
		traceStore, err = trace.Open(cfg.traceDBURL)
		if err != nil {
			slog.Error("open trace store", "error", err)
			os.Exit(1)
		}
		defer traceStore.Close()
		slog.Info("tracing enabled")
	}

	convMgr := conversation.New(conversation.Config{
		ConversationCapacity: cfg.conversationCapacity,
		ConversationIdleTTL:  cfg.conversationIdleTTL,
		ResponseCacheCap:     cfg.responseCacheCapacity,
		ResponseCacheTTL:     cfg.responseCacheTTL,
		PromptWindowTurns:    cfg.promptWindowTurns,
		LLM:                  pipeline.BindEngine(llmRouter, llmEngine),
		SystemPrompt:         cfg.llmSystemPrompt,
		Model:                cfg.llmModel,
		Engine:               llmEngine,
		Persister:            buildPersister(cfg),
		Retriever:            buildRetriever(cfg),
	})

	srv := &server{
		cfg:           cfg,
		registry:      voiceRegistry,
		synthCache:    synthCache,
		responseCache: responseCache,
		conversations: convMgr,
		traceStore:    traceStore,
		limiter:       rate.NewLimiter(rate.Limit(cfg.rateLimitPerMinute)/60, cfg.rateLimitPerMinute),
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.port,
		Handler:      withMiddleware(srv, newRouter(srv)),
		ReadTimeout:  cfg.requestTimeout,
		WriteTimeout: cfg.requestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "port", cfg.port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("gateway stopped")
}

// piperLoader builds a synth.Loader that decodes the Synthesizer Cache's
// composite "configPath#speakerID" key back into a config path and an
// optional speaker id before handing them to the sidecar client. The cache
// key and the on-disk config path diverge whenever a voice binds a speaker
// id, so the split must happen here rather than in the cache itself.
func piperLoader(piperURL string) synth.Loader {
	client := synth.NewHTTPClient(30 * time.Second)
	return func(key string) (synth.Synth, int, error) {
		configPath, speakerID := splitCacheKey(key)

		sampleRate, err := synth.ReadSampleRate(configPath)
		if err != nil {
			return nil, 0, err
		}

		voice := strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath))
		return synth.NewPiperSynth(piperURL, voice, speakerID, client), sampleRate, nil
	}
}

func splitCacheKey(key string) (configPath string, speakerID *int64) {
	idx := strings.LastIndexByte(key, '#')
	if idx < 0 {
		return key, nil
	}
	id, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return key, nil
	}
	return key[:idx], &id
}

// buildLLMRouter registers every configured provider under its engine name
// and returns the router plus the configured default engine. Raw NDJSON/SSE
// clients cover the three core engines; when an OpenAI key is present an
// additional "openai-agent" engine is registered through the SDK-based
// AgentLLM path, for callers that want tool-calling instead of a plain
// completion.
func buildLLMRouter(cfg config) (*pipeline.LLMRouter, string) {
	backends := map[string]pipeline.LLMChatClient{
		"ollama": pipeline.NewOllamaLLMClient(cfg.ollamaURL, cfg.ollamaModel, cfg.llmSystemPrompt, cfg.llmMaxTokens, cfg.qdrantPoolSize),
	}
	if cfg.openaiAPIKey != "" {
		backends["openai"] = pipeline.NewOpenAICompletionsClient(cfg.openaiAPIKey, cfg.openaiURL, cfg.llmModel, cfg.llmMaxTokens, cfg.qdrantPoolSize)
		backends["openai-agent"] = buildAgentEngineClient(cfg)
	}
	if cfg.anthropicAPIKey != "" {
		backends["anthropic"] = pipeline.NewAnthropicLLMClient(cfg.anthropicAPIKey, cfg.anthropicURL, cfg.llmModel, cfg.llmMaxTokens, cfg.qdrantPoolSize)
	}
	return pipeline.NewLLMRouter(backends, "ollama"), cfg.llmProvider
}

// buildAgentEngineClient wires the openai-agents-go SDK path, grounded on
// the donor gateway's initLLM: an OpenAI-compatible provider pointed at the
// Responses API, registered under its own engine name.
func buildAgentEngineClient(cfg config) pipeline.LLMChatClient {
	agent := pipeline.NewAgentLLM("openai-agent", cfg.llmMaxTokens)
	agent.Register("openai-agent", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
		BaseURL:      param.NewOpt(cfg.openaiURL + "/v1/"),
		APIKey:       param.NewOpt(cfg.openaiAPIKey),
		UseResponses: param.NewOpt(true),
	}), cfg.llmModel)
	return pipeline.NewAgentEngineClient(agent, "openai-agent")
}

// ensureRAGCollections creates the knowledge-base and call-history
// collections if they don't already exist, so a fresh deployment doesn't
// have to be seeded manually before its first RAG lookup or chat turn.
func ensureRAGCollections(cfg config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	qdrant := pipeline.NewQdrantClient(cfg.qdrantURL, cfg.qdrantAPIKey, cfg.qdrantPoolSize)
	if err := qdrant.EnsureCollection(ctx, cfg.ragCollection, cfg.vectorSize); err != nil {
		slog.Warn("ensure knowledge base collection", "error", err, "collection", cfg.ragCollection)
	}
	if cfg.persistenceReady {
		if err := qdrant.EnsureCollection(ctx, cfg.callHistoryColl, cfg.vectorSize); err != nil {
			slog.Warn("ensure call history collection", "error", err, "collection", cfg.callHistoryColl)
		}
	}
}

// buildRetriever wires the RAG client when Qdrant is configured, nil
// otherwise so the Conversation Manager skips retrieval entirely.
func buildRetriever(cfg config) conversation.Retriever {
	if !cfg.ragEnabled {
		return nil
	}
	embedder := pipeline.NewEmbeddingClient(cfg.ollamaURL, cfg.embeddingModel, cfg.qdrantPoolSize)
	qdrant := pipeline.NewQdrantClient(cfg.qdrantURL, cfg.qdrantAPIKey, cfg.qdrantPoolSize)
	return pipeline.NewRAGClient(pipeline.RAGConfig{
		Embedder:       embedder,
		Qdrant:         qdrant,
		Collection:     cfg.ragCollection,
		TopK:           cfg.ragTopK,
		ScoreThreshold: cfg.ragScoreThresh,
	})
}

// buildPersister wires fire-and-forget call-history storage when Qdrant is
// configured, nil otherwise so the Conversation Manager skips persistence.
func buildPersister(cfg config) conversation.Persister {
	if !cfg.persistenceReady {
		return nil
	}
	embedder := pipeline.NewEmbeddingClient(cfg.ollamaURL, cfg.embeddingModel, cfg.qdrantPoolSize)
	qdrant := pipeline.NewQdrantClient(cfg.qdrantURL, cfg.qdrantAPIKey, cfg.qdrantPoolSize)
	return pipeline.NewCallHistoryClient(embedder, qdrant, cfg.callHistoryColl)
}

// withMiddleware wraps next with CORS, a per-process rate limiter, and a
// request-metrics recorder, grounded on the donor gateway's corsMiddleware
// and rate.Limiter usage.
func withMiddleware(srv *server, next http.Handler) http.Handler {
	return corsMiddleware(srv.cfg.corsAllowedOrigins, rateLimitMiddleware(srv, metricsMiddleware(next)))
}

func corsMiddleware(allowedOrigins string, next http.Handler) http.Handler {
	origin := "*"
	if allowedOrigins != "" {
		origin = allowedOrigins
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(srv *server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !srv.limiter.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code a handler wrote so metricsMiddleware
// can label the request-count metric after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RequestsTotal.WithLabelValues(r.URL.Path, statusClass(rec.status)).Inc()
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
