package synth

import (
	"context"
	"errors"
	"testing"
)

type scriptedSynth struct {
	calls int
	fail  bool
}

func (s *scriptedSynth) Decode(ctx context.Context, text string, emit func([]float32) error) error {
	s.calls++
	if s.fail {
		return errors.New("decode failed")
	}
	return emit([]float32{0.5, 0.5, 0.5})
}

func TestSynthesizeBatchConcatenatesWithSilence(t *testing.T) {
	s := &scriptedSynth{}
	handle := &Handle{Synth: s, SampleRate: 1000}
	p := NewPipeline(handle)

	samples, sampleRate, err := p.SynthesizeBatch(context.Background(), "Hello. World.")
	if err != nil {
		t.Fatalf("SynthesizeBatch: %v", err)
	}
	if sampleRate != 1000 {
		t.Errorf("sampleRate = %d, want 1000", sampleRate)
	}
	if len(samples) <= 6 {
		t.Errorf("expected output to include inter-chunk silence, got %d samples", len(samples))
	}
	if s.calls != 2 {
		t.Errorf("expected 2 decode calls for 2 sentences, got %d", s.calls)
	}
}

func TestSynthesizeBatchPropagatesSynthError(t *testing.T) {
	s := &scriptedSynth{fail: true}
	handle := &Handle{Synth: s, SampleRate: 1000}
	p := NewPipeline(handle)

	_, _, err := p.SynthesizeBatch(context.Background(), "Hello.")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *SynthError
	if !errors.As(err, &se) {
		t.Errorf("expected *SynthError, got %T", err)
	}
}

func TestSynthesizeStreamForwardsSubBuffersInOrder(t *testing.T) {
	s := &scriptedSynth{}
	handle := &Handle{Synth: s, SampleRate: 1000}
	p := NewPipeline(handle)

	var got []SubBuffer
	err := p.SynthesizeStream(context.Background(), "Hello. World.", func(sub SubBuffer) error {
		got = append(got, sub)
		return nil
	})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	// 2 chunks: audio, silence, audio (no trailing silence after the last chunk)
	if len(got) != 3 {
		t.Fatalf("got %d sub-buffers, want 3", len(got))
	}
	if got[1].ChunkIndex != 0 {
		t.Errorf("expected silence sub-buffer tagged with the preceding chunk index")
	}
}
