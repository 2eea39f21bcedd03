package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total HTTP requests by route and status class",
	}, []string{"route", "status"})

	StreamingSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_streaming_sessions_active",
		Help: "Currently open /stream WebSocket sessions",
	})

	SynthDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_duration_seconds",
		Help:    "Synthesis latency by mode (batch, stream)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"mode"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by component and error type",
	}, []string{"component", "error_type"})

	SynthCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_cache_hits_total",
		Help: "Synthesizer cache hits",
	})

	SynthCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_cache_misses_total",
		Help: "Synthesizer cache misses (model loads)",
	})

	ResponseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_hits_total",
		Help: "Response cache hits",
	})

	ResponseCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_misses_total",
		Help: "Response cache misses",
	})

	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversations_active",
		Help: "Conversations currently resident in the conversation table",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency (llm)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_embedding_duration_seconds",
		Help:    "Embedding generation latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
	})

	RAGDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_rag_duration_seconds",
		Help:    "RAG retrieval latency (embed + search)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
	})
)
