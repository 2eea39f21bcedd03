package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/audio"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/cache"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/conversation"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/registry"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/synth"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/trace"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/validation"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/ws"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// server holds every backend collaborator the HTTP handlers share.
type server struct {
	cfg           config
	registry      *registry.Registry
	synthCache    *synth.Cache
	responseCache *cache.Cache
	conversations *conversation.Manager
	traceStore    *trace.Store
	limiter       *rate.Limiter
}

// newRouter wires every spec endpoint to its handler, including the
// WebSocket streaming driver mounted directly as a sub-handler.
func newRouter(s *server) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("GET /voices/detail", s.handleVoicesDetail)
	mux.HandleFunc("POST /tts", s.handleTTS)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /voice-chat", s.handleVoiceChat)
	mux.Handle("GET /stream/{lang}/{text}", ws.NewHandler(ws.HandlerConfig{
		Registry:   s.registry,
		SynthCache: s.synthCache,
		FrameSize:  s.cfg.frameSize,
		HopSize:    s.cfg.hopSize,
		NMels:      s.cfg.nMels,
		TraceStore: s.traceStore,
	}))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// traceSession starts a traced session+run for one /tts, /chat, or
// /voice-chat request when request tracing is enabled, grounded on the
// donor's ws.Handler.startTracer (CreateSession, then a Tracer bound to
// it). Returns a nil-safe *trace.Tracer (its methods no-op on a nil
// receiver) and a finish func that ends the run and closes the tracer;
// callers defer finish unconditionally.
func (s *server) traceSession(name string) (tracer *trace.Tracer, runID string, finish func(transcript, response, status string)) {
	if s.traceStore == nil {
		return nil, "", func(string, string, string) {}
	}
	sessionID := uuid.NewString()
	_ = s.traceStore.CreateSession(sessionID, name)
	tracer = trace.NewTracer(s.traceStore, sessionID)
	runID = tracer.StartRun()
	started := time.Now()
	return tracer, runID, func(transcript, response, status string) {
		tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), transcript, response, status)
		tracer.Close()
		_ = s.traceStore.EndSession(sessionID)
	}
}

// traceSpan records one stage of a run's work; a no-op when tracer is nil.
func traceSpan(tracer *trace.Tracer, runID, name string, started time.Time, input, output, status, errMsg string) {
	tracer.RecordSpan(runID, name, started, float64(time.Since(started).Milliseconds()), input, output, status, errMsg)
}

func statusAndErr(err error) (status, errMsg string) {
	if err != nil {
		return "error", err.Error()
	}
	return "ok", ""
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListLanguages())
}

func (s *server) handleVoicesDetail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListDetail())
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
	Speaker  *int64 `json:"speaker"`
}

type ttsResponse struct {
	AudioBase64 string `json:"audio_base64"`
	DurationMs  int64  `json:"duration_ms"`
	SampleRate  int    `json:"sample_rate"`
}

func (s *server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	tracer, runID, finish := s.traceSession("tts")
	spanStarted := time.Now()
	result, err := s.synthesize(r.Context(), req.Text, req.Language, req.Voice, req.Speaker)
	status, errMsg := statusAndErr(err)
	traceSpan(tracer, runID, "synthesize", spanStarted, req.Text, "", status, errMsg)
	if err != nil {
		finish(req.Text, "", status)
		writeHandlerError(w, err)
		return
	}
	finish(req.Text, result.AudioBase64, status)

	writeJSON(w, http.StatusOK, ttsResponse{
		AudioBase64: result.AudioBase64,
		DurationMs:  result.DurationMs,
		SampleRate:  result.SampleRate,
	})
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Language       string `json:"language"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
	AudioBase64    string `json:"audio_base64,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validation.Text(req.Message); err != nil {
		writeHandlerError(w, err)
		return
	}
	if err := validation.ConversationID(req.ConversationID); err != nil {
		writeHandlerError(w, err)
		return
	}

	tracer, runID, finish := s.traceSession("chat")
	spanStarted := time.Now()
	result, err := s.conversations.Chat(r.Context(), req.ConversationID, req.Message)
	status, errMsg := statusAndErr(err)
	traceSpan(tracer, runID, "llm_chat", spanStarted, req.Message, result.Reply, status, errMsg)
	if err != nil {
		finish(req.Message, "", status)
		slog.Error("chat", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	finish(req.Message, result.Reply, status)

	writeJSON(w, http.StatusOK, chatResponse{Reply: result.Reply, ConversationID: result.ConversationID})
}

type voiceChatResponse struct {
	AudioBase64    string `json:"audio_base64"`
	SampleRate     int    `json:"sample_rate"`
	DurationMs     int64  `json:"duration_ms"`
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	CleanedText    string `json:"cleaned_text"`
}

func (s *server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validation.Text(req.Message); err != nil {
		writeHandlerError(w, err)
		return
	}
	if err := validation.ConversationID(req.ConversationID); err != nil {
		writeHandlerError(w, err)
		return
	}

	tracer, runID, finish := s.traceSession("voice-chat")

	llmSpanStarted := time.Now()
	chatResult, err := s.conversations.Chat(r.Context(), req.ConversationID, req.Message)
	status, errMsg := statusAndErr(err)
	traceSpan(tracer, runID, "llm_chat", llmSpanStarted, req.Message, chatResult.Reply, status, errMsg)
	if err != nil {
		finish(req.Message, "", status)
		slog.Error("voice-chat llm", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	synthSpanStarted := time.Now()
	synthResult, err := s.synthesize(r.Context(), chatResult.Reply, req.Language, "", nil)
	status, errMsg = statusAndErr(err)
	traceSpan(tracer, runID, "synthesize", synthSpanStarted, chatResult.Reply, "", status, errMsg)
	if err != nil {
		finish(req.Message, chatResult.Reply, status)
		writeHandlerError(w, err)
		return
	}
	finish(req.Message, chatResult.Reply, status)

	writeJSON(w, http.StatusOK, voiceChatResponse{
		AudioBase64:    synthResult.AudioBase64,
		SampleRate:     synthResult.SampleRate,
		DurationMs:     synthResult.DurationMs,
		ConversationID: chatResult.ConversationID,
		Reply:          chatResult.Reply,
		CleanedText:    chatResult.Reply,
	})
}

// synthResult is the shared outcome of one batch-synthesis request, the
// same shape used by both /tts and /voice-chat.
type synthResult struct {
	AudioBase64 string
	SampleRate  int
	DurationMs  int64
}

// synthesize validates input, resolves the voice, synthesizes (or serves
// from the Response Cache), and returns the WAV-encoded result. speaker, if
// non-nil, overrides the registry's resolved speaker id for this call.
func (s *server) synthesize(ctx context.Context, text, language, voice string, speaker *int64) (synthResult, error) {
	if err := validation.Text(text); err != nil {
		return synthResult{}, err
	}
	if err := validation.Language(language); err != nil {
		return synthResult{}, err
	}

	cacheVoice := voice
	if speaker != nil {
		cacheVoice = voice + "#" + itoa64(*speaker)
	}
	if entry, ok := s.responseCache.Get(text, language, cacheVoice); ok {
		return synthResult{AudioBase64: entry.AudioBase64, SampleRate: entry.SampleRate, DurationMs: entry.DurationMs}, nil
	}

	configPath, speakerID, err := s.registry.Resolve(language, voice)
	if err != nil {
		return synthResult{}, err
	}
	if speaker != nil {
		speakerID = speaker
	}

	cacheKey := configPath
	if speakerID != nil {
		cacheKey = configPath + "#" + itoa64(*speakerID)
	}

	handle, err := s.synthCache.GetOrLoad(cacheKey)
	if err != nil {
		return synthResult{}, err
	}

	pipe := synth.NewPipeline(handle)
	synthStarted := time.Now()
	samples, sampleRate, err := pipe.SynthesizeBatch(ctx, text)
	if err != nil {
		return synthResult{}, err
	}
	metrics.SynthDuration.WithLabelValues("batch").Observe(time.Since(synthStarted).Seconds())

	durationMs := int64(float64(len(samples)) / float64(sampleRate) * 1000)
	audioBase64 := audio.EncodeWAVBase64(samples, sampleRate)

	s.responseCache.Put(text, language, cacheVoice, cache.Entry{
		AudioBase64: audioBase64,
		SampleRate:  sampleRate,
		DurationMs:  durationMs,
	})

	return synthResult{AudioBase64: audioBase64, SampleRate: sampleRate, DurationMs: durationMs}, nil
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// writeHandlerError maps a collaborator error to the HTTP status spec §7
// assigns it: validation and resolution errors are client errors (400),
// everything else (model load, synthesis) is a server error (500).
func writeHandlerError(w http.ResponseWriter, err error) {
	var invalidInput *validation.InvalidInputError
	var unknownLang *registry.UnknownLanguageError
	var unknownVoice *registry.UnknownVoiceError

	switch {
	case errors.As(err, &invalidInput), errors.As(err, &unknownLang), errors.As(err, &unknownVoice):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: status})
}
