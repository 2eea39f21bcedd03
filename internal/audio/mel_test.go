package audio

import "testing"

func TestAddHopReturnsZeroFrameUntilWindowFilled(t *testing.T) {
	framer := NewMelFramer(8, 4, 4, 8000)

	frame := framer.AddHop(make([]float32, 4))
	if len(frame) != 4 {
		t.Fatalf("frame length = %d, want 4 (n_mels)", len(frame))
	}
	for i, v := range frame {
		if v != 0 {
			t.Errorf("frame[%d] = %v, want 0 before the window fills", i, v)
		}
	}
}

func TestAddHopProducesNonZeroFrameOnceFilled(t *testing.T) {
	framer := NewMelFramer(8, 4, 4, 8000)
	signal := []float32{1, -1, 1, -1}

	framer.AddHop(signal)
	frame := framer.AddHop(signal)

	if len(frame) != 4 {
		t.Fatalf("frame length = %d, want 4", len(frame))
	}
	var anyNonZero bool
	for _, v := range frame {
		if v != 0 {
			anyNonZero = true
		}
	}
	if !anyNonZero {
		t.Error("expected at least one non-zero mel bin once the window is filled with a real signal")
	}
}

func TestToFloat32Narrows(t *testing.T) {
	frame := []float64{1.5, -2.25, 0}
	out := ToFloat32(frame)
	if len(out) != 3 || out[0] != 1.5 || out[1] != -2.25 || out[2] != 0 {
		t.Errorf("ToFloat32(%v) = %v, unexpected narrowing", frame, out)
	}
}

func TestMelToHzRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 100, 1000, 8000} {
		mel := hzToMel(hz)
		back := melToHz(mel)
		diff := back - hz
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Errorf("hzToMel/melToHz round trip for %v: got %v, diff %v", hz, back, diff)
		}
	}
}
