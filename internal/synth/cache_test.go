package synth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeSynth struct{ sampleRate int }

func (f *fakeSynth) Decode(ctx context.Context, text string, emit func([]float32) error) error {
	return emit([]float32{0.1, 0.2})
}

func TestGetOrLoadCachesByKey(t *testing.T) {
	var loads int32
	c := NewCache(10, func(configPath string) (Synth, int, error) {
		atomic.AddInt32(&loads, 1)
		return &fakeSynth{}, 22050, nil
	})

	h1, err := c.GetOrLoad("voice-a")
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	h2, err := c.GetOrLoad("voice-a")
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if h1 != h2 {
		t.Error("expected second GetOrLoad to return the same handle")
	}
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestGetOrLoadPropagatesLoadError(t *testing.T) {
	c := NewCache(10, func(configPath string) (Synth, int, error) {
		return nil, 0, errors.New("model missing")
	})

	if _, err := c.GetOrLoad("missing"); err == nil {
		t.Fatal("expected error from failing loader")
	} else {
		var mle *ModelLoadError
		if !errors.As(err, &mle) {
			t.Errorf("expected *ModelLoadError, got %T", err)
		}
	}
}

func TestEvictionBySmallestLastAccessed(t *testing.T) {
	c := NewCache(2, func(configPath string) (Synth, int, error) {
		return &fakeSynth{}, 16000, nil
	})

	c.GetOrLoad("a")
	c.GetOrLoad("b")
	c.GetOrLoad("a") // touch a, making b the eviction candidate
	c.GetOrLoad("c") // should evict b

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	c.mu.Lock()
	_, hasB := c.entries["b"]
	_, hasA := c.entries["a"]
	c.mu.Unlock()
	if hasB {
		t.Error("expected 'b' to be evicted")
	}
	if !hasA {
		t.Error("expected 'a' to remain")
	}
}

func TestGetOrLoadConcurrentMisses(t *testing.T) {
	var loads int32
	c := NewCache(10, func(configPath string) (Synth, int, error) {
		atomic.AddInt32(&loads, 1)
		return &fakeSynth{}, 22050, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrLoad("shared"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (all concurrent misses converge on one entry)", c.Len())
	}
}
