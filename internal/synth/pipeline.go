package synth

import (
	"context"
	"math"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/chunk"
)

// SubBuffer is one ordered fragment of streamed PCM: either synthesized
// audio for a chunk, or an inserted silence gap between chunks.
type SubBuffer struct {
	Samples    []float32
	ChunkIndex int
}

// Pipeline drives chunked text through a synthesizer Handle, interleaving
// silence between chunks per their boundary class. This generalizes the
// donor's streamLLMWithTTS/consumeSentences producer/consumer shape from
// LLM-token sentences to punctuation-delimited text chunks.
type Pipeline struct {
	handle *Handle
}

// NewPipeline builds a pipeline bound to a loaded synthesizer handle.
func NewPipeline(handle *Handle) *Pipeline {
	return &Pipeline{handle: handle}
}

// SynthesizeBatch runs the full pipeline to completion and returns the
// concatenated PCM plus the handle's sample rate.
func (p *Pipeline) SynthesizeBatch(ctx context.Context, text string) ([]float32, int, error) {
	chunks := chunk.Split(text)
	if len(chunks) == 0 {
		return nil, p.handle.SampleRate, nil
	}

	var out []float32
	for i, c := range chunks {
		if err := p.handle.Synth.Decode(ctx, c.Text, func(sub []float32) error {
			out = append(out, sub...)
			return nil
		}); err != nil {
			return nil, 0, &SynthError{ChunkIndex: i, Cause: err}
		}
		if i < len(chunks)-1 {
			out = append(out, silence(c.Boundary.PauseMs(), p.handle.SampleRate)...)
		}
	}
	return out, p.handle.SampleRate, nil
}

// StreamFunc receives each produced sub-buffer in order. Returning an error
// stops the stream.
type StreamFunc func(SubBuffer) error

// SynthesizeStream runs the streaming consumer mode: each synthesizer
// sub-buffer is forwarded to emit as soon as produced, with a distinct
// silence sub-buffer emitted after each non-terminal chunk. A producer
// error surfaces as *SynthError; output already forwarded is not retracted.
func (p *Pipeline) SynthesizeStream(ctx context.Context, text string, emit StreamFunc) error {
	chunks := chunk.Split(text)
	for i, c := range chunks {
		if err := p.handle.Synth.Decode(ctx, c.Text, func(sub []float32) error {
			return emit(SubBuffer{Samples: sub, ChunkIndex: i})
		}); err != nil {
			return &SynthError{ChunkIndex: i, Cause: err}
		}
		if i < len(chunks)-1 {
			pause := silence(c.Boundary.PauseMs(), p.handle.SampleRate)
			if err := emit(SubBuffer{Samples: pause, ChunkIndex: i}); err != nil {
				return err
			}
		}
	}
	return nil
}

func silence(ms, sampleRate int) []float32 {
	n := int(math.Round(float64(ms) * float64(sampleRate) / 1000.0))
	if n <= 0 {
		return nil
	}
	return make([]float32, n)
}
