// Package ws implements the Streaming Endpoint Driver: a single-shot
// WebSocket upgrade that synthesizes text and streams audio + mel frames
// back to the client in order, per the six-state
// Opening→Synthesizing→Streaming→(Complete|Errored|Cancelled) machine.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/audio"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/registry"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/synth"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/trace"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/validation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	channelCapacity = 100
	defaultFrameSize = 1024
	defaultHopSize   = 256
	defaultNMels     = 80
)

// HandlerConfig holds the shared backend collaborators for every streaming
// session.
type HandlerConfig struct {
	Registry   *registry.Registry
	SynthCache *synth.Cache
	FrameSize  int
	HopSize    int
	NMels      int
	TraceStore *trace.Store
}

// Handler upgrades and drives /stream/{lang}/{text} sessions.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a streaming handler with shared backend collaborators.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.FrameSize == 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = defaultHopSize
	}
	if cfg.NMels == 0 {
		cfg.NMels = defaultNMels
	}
	return &Handler{cfg: cfg}
}

// streamItem is one producer output: either a sub-buffer of samples or a
// terminal error.
type streamItem struct {
	samples []float32
	err     error
}

// ServeHTTP upgrades the connection, resolves the requested voice, and
// drives one streaming synthesis session to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lang := r.PathValue("lang")
	rawText := r.PathValue("text")
	text, err := url.PathUnescape(rawText)
	if err != nil {
		text = rawText
	}
	voice := r.URL.Query().Get("voice")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.StreamingSessionsActive.Inc()
	defer metrics.StreamingSessionsActive.Dec()

	send := newSender(conn)
	h.runSession(r.Context(), send, lang, voice, text)
}

func (h *Handler) runSession(ctx context.Context, send sendFunc, lang, voice, text string) {
	started := time.Now()

	sessionID := uuid.NewString()
	tracer := h.startTracer(sessionID, lang, voice, text)
	runID := tracer.StartRun()
	defer func() {
		tracer.Close()
		if h.cfg.TraceStore != nil {
			_ = h.cfg.TraceStore.EndSession(sessionID)
		}
	}()

	if err := validation.Language(lang); err != nil {
		send(errorMsg{Error: err.Error(), Code: 400})
		tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), text, "", "error")
		return
	}
	if err := validation.Text(text); err != nil {
		send(errorMsg{Error: err.Error(), Code: 400})
		tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), text, "", "error")
		return
	}

	send(statusMsg{Type: "status", Status: "synthesizing"})

	configPath, speakerID, err := h.cfg.Registry.Resolve(lang, voice)
	if err != nil {
		send(errorMsg{Error: err.Error(), Code: 400})
		tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), text, "", "error")
		return
	}
	cacheKey := configPath
	if speakerID != nil {
		cacheKey = fmt.Sprintf("%s#%d", configPath, *speakerID)
	}

	handle, err := h.cfg.SynthCache.GetOrLoad(cacheKey)
	if err != nil {
		send(errorMsg{Error: err.Error(), Code: 500})
		tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), text, "", "error")
		return
	}

	pipe := synth.NewPipeline(handle)
	items := make(chan streamItem, channelCapacity)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	spanStarted := time.Now()
	go runProducer(sessionCtx, pipe, text, items)

	errored := consumeStream(sessionCtx, cancel, send, items, handle.SampleRate, h.cfg.FrameSize, h.cfg.HopSize, h.cfg.NMels)

	status := "ok"
	if errored {
		status = "error"
	}
	tracer.RecordSpan(runID, "stream_synthesis", spanStarted, float64(time.Since(spanStarted).Milliseconds()), text, "", status, "")
	tracer.EndRun(runID, float64(time.Since(started).Milliseconds()), text, "", status)

	metrics.SynthDuration.WithLabelValues("stream").Observe(time.Since(started).Seconds())
}

// startTracer begins a traced session for one streaming connection,
// grounded on the donor ws.Handler's startTracer (CreateSession, then a
// Tracer bound to it). Returns a nil-safe *trace.Tracer when tracing is
// disabled, matching the donor's "no TraceStore configured" behavior.
func (h *Handler) startTracer(sessionID, lang, voice, text string) *trace.Tracer {
	if h.cfg.TraceStore == nil {
		return nil
	}
	meta, _ := json.Marshal(struct {
		Lang  string `json:"lang"`
		Voice string `json:"voice"`
	}{Lang: lang, Voice: voice})
	_ = h.cfg.TraceStore.CreateSession(sessionID, string(meta))
	return trace.NewTracer(h.cfg.TraceStore, sessionID)
}

func runProducer(ctx context.Context, pipe *synth.Pipeline, text string, items chan<- streamItem) {
	defer close(items)
	err := pipe.SynthesizeStream(ctx, text, func(sub synth.SubBuffer) error {
		select {
		case items <- streamItem{samples: sub.Samples}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		select {
		case items <- streamItem{err: err}:
		case <-ctx.Done():
		}
	}
}

// consumeStream drains the producer channel in order, maintaining a
// running sample buffer and emitting one chunk message per full hop. It
// reports whether the session ended in error, for the caller's trace Run.
func consumeStream(ctx context.Context, cancel context.CancelFunc, send sendFunc, items <-chan streamItem, sampleRate, frameSize, hopSize, nMels int) bool {
	framer := audio.NewMelFramer(frameSize, hopSize, nMels, sampleRate)

	var sampleBuffer []float32
	var samplesReceived, samplesEmitted int64
	chunkIndex := 0
	first := true
	errored := false

	for {
		select {
		case item, ok := <-items:
			if !ok {
				finalizeStream(send, framer, sampleBuffer, &chunkIndex, &samplesEmitted, hopSize, sampleRate, errored)
				if !errored {
					send(metadataMsg{
						Type:              "metadata",
						SampleRate:        sampleRate,
						TotalSamples:      samplesEmitted,
						EstimatedDuration: float64(samplesEmitted) / float64(sampleRate),
						TotalChunks:       chunkIndex,
						HopSize:           hopSize,
					})
					send(statusMsg{Type: "status", Status: "complete"})
				}
				return errored
			}

			if item.err != nil {
				metrics.Errors.WithLabelValues("stream", "synth_error").Inc()
				send(errorMsg{Error: item.err.Error(), Code: 500})
				errored = true
				cancel()
				continue
			}

			if first {
				send(statusMsg{Type: "status", Status: "streaming"})
				send(metadataMsg{
					Type:       "metadata",
					SampleRate: sampleRate,
					HopSize:    hopSize,
				})
				first = false
			}

			sampleBuffer = append(sampleBuffer, item.samples...)
			samplesReceived += int64(len(item.samples))

			for len(sampleBuffer) >= hopSize {
				hop := sampleBuffer[:hopSize]
				sampleBuffer = sampleBuffer[hopSize:]
				emitChunk(send, framer, hop, &chunkIndex, &samplesEmitted, samplesReceived, hopSize, sampleRate, 95.0)
			}

		case <-ctx.Done():
			return errored
		}
	}
}

func finalizeStream(send sendFunc, framer *audio.MelFramer, remainder []float32, chunkIndex *int, samplesEmitted *int64, hopSize, sampleRate int, errored bool) {
	if errored || len(remainder) < hopSize/2 {
		return
	}
	padded := make([]float32, hopSize)
	copy(padded, remainder)
	emitChunk(send, framer, padded, chunkIndex, samplesEmitted, *samplesEmitted+int64(len(remainder)), hopSize, sampleRate, 100.0)
}

func emitChunk(send sendFunc, framer *audio.MelFramer, hop []float32, chunkIndex *int, samplesEmitted *int64, samplesReceived int64, hopSize, sampleRate int, progressCap float64) {
	mel := framer.AddHop(hop)

	progress := progressCap
	if progressCap < 100.0 && samplesReceived > 0 {
		progress = min(progressCap, float64(*samplesEmitted)/float64(samplesReceived)*95.0)
	}

	send(chunkMsg{
		Type:        "chunk",
		Audio:       hop,
		Mel:         audio.ToFloat32(mel),
		Chunk:       *chunkIndex,
		TotalChunks: 0,
		Progress:    progress,
		Timestamp:   float64(*samplesEmitted) / float64(sampleRate),
		Duration:    float64(hopSize) / float64(sampleRate),
		Offset:      *samplesEmitted,
	})

	*chunkIndex++
	*samplesEmitted += int64(hopSize)
}

type statusMsg struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type metadataMsg struct {
	Type              string  `json:"type"`
	SampleRate        int     `json:"sample_rate"`
	TotalSamples      int64   `json:"total_samples"`
	EstimatedDuration float64 `json:"estimated_duration"`
	TotalChunks       int     `json:"total_chunks"`
	HopSize           int     `json:"hop_size"`
}

type chunkMsg struct {
	Type        string    `json:"type"`
	Audio       []float32 `json:"audio"`
	Mel         []float32 `json:"mel"`
	Chunk       int       `json:"chunk"`
	TotalChunks int       `json:"total_chunks"`
	Progress    float64   `json:"progress"`
	Timestamp   float64   `json:"timestamp"`
	Duration    float64   `json:"duration"`
	Offset      int64     `json:"offset"`
}

type errorMsg struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type sendFunc func(msg any)

// newSender returns a mutex-guarded JSON text-frame writer, grounded on the
// donor's newEventSender pattern.
func newSender(conn *websocket.Conn) sendFunc {
	var mu sync.Mutex
	return func(msg any) {
		mu.Lock()
		defer mu.Unlock()

		data, err := json.Marshal(msg)
		if err != nil {
			slog.Error("marshal stream message", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("write stream message", "error", err)
		}
	}
}
