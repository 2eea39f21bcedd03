package trace

import "time"

// Session represents one traced HTTP request or WebSocket streaming
// connection — the unit request tracing is scoped to.
type Session struct {
	ID        string    `json:"id"`
	Metadata  string    `json:"metadata"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	RunCount  int       `json:"run_count,omitempty"`
}

// Run represents one synthesis or chat execution (one /tts, /chat,
// /voice-chat call, or one /stream session).
type Run struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs float64    `json:"duration_ms,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Response   string     `json:"response,omitempty"`
	Status     string     `json:"status"`
	SpanCount  int        `json:"span_count,omitempty"`
}

// Span represents one stage of a run (batch synthesis, LLM call, or a
// whole streaming synthesis).
type Span struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
