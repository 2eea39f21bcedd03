package audio

import "math"

// MelFramer maintains STFT state and produces n_mels-length mel-spectrogram
// frames from contiguous hop-sized slices, per spec.md §4.6. No FFT/DSP
// package appears in this codebase's dependency lineage (the source this
// spec was distilled from depended on Rust's mel_spec/ndarray/num_complex,
// none of which have an in-corpus Go analog), so the STFT and filter bank
// are hand-rolled against the standard library — see DESIGN.md.
type MelFramer struct {
	frameSize int
	hopSize   int
	nMels     int

	window  []float64
	history []float64 // last frameSize samples, updated per hop
	filled  int        // samples accumulated so far, capped at frameSize

	filterBank [][]float64 // nMels x (frameSize/2+1)
}

// NewMelFramer builds a framer for the given STFT window/hop sizes, mel
// filter-bank width, and source sample rate.
func NewMelFramer(frameSize, hopSize, nMels, sampleRate int) *MelFramer {
	return &MelFramer{
		frameSize:  frameSize,
		hopSize:    hopSize,
		nMels:      nMels,
		window:     hannWindow(frameSize),
		history:    make([]float64, frameSize),
		filterBank: melFilterBank(nMels, frameSize, sampleRate),
	}
}

// AddHop feeds one hop_size slice of samples and returns the resulting
// mel frame. Until enough history has accumulated to fill a full STFT
// window, it returns a zero-filled vector of length n_mels so every hop
// has a corresponding frame.
func (m *MelFramer) AddHop(hop []float32) []float64 {
	m.pushHistory(hop)

	if m.filled < m.frameSize {
		return make([]float64, m.nMels)
	}

	windowed := make([]float64, m.frameSize)
	for i, s := range m.history {
		windowed[i] = s * m.window[i]
	}

	spectrum := power(fftReal(windowed))
	return applyFilterBank(m.filterBank, spectrum)
}

func (m *MelFramer) pushHistory(hop []float32) {
	shift := len(hop)
	if shift >= len(m.history) {
		for i := range m.history {
			m.history[i] = float64(hop[len(hop)-len(m.history)+i])
		}
		m.filled = m.frameSize
		return
	}
	copy(m.history, m.history[shift:])
	for i, s := range hop {
		m.history[len(m.history)-shift+i] = float64(s)
	}
	m.filled = min(m.filled+shift, m.frameSize)
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// fftReal computes the magnitude-preserving DFT of a real signal via a
// direct O(n^2) summation, returning the first n/2+1 bins (the
// non-redundant half of a real-input spectrum). frameSize is small (1024)
// and this runs once per hop, so the naive transform is acceptable without
// pulling in an FFT package.
func fftReal(x []float64) []complex128 {
	n := len(x)
	bins := n/2 + 1
	out := make([]complex128, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			theta := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += x[t] * math.Cos(theta)
			im += x[t] * math.Sin(theta)
		}
		out[k] = complex(re, im)
	}
	return out
}

func power(spectrum []complex128) []float64 {
	p := make([]float64, len(spectrum))
	for i, c := range spectrum {
		p[i] = real(c)*real(c) + imag(c)*imag(c)
	}
	return p
}

// melFilterBank builds a Slaney-style triangular filter bank over the
// power-spectrum bins.
func melFilterBank(nMels, frameSize, sampleRate int) [][]float64 {
	nBins := frameSize/2 + 1
	minMel := hzToMel(0)
	maxMel := hzToMel(float64(sampleRate) / 2)

	points := make([]float64, nMels+2)
	for i := range points {
		mel := minMel + (maxMel-minMel)*float64(i)/float64(nMels+1)
		hz := melToHz(mel)
		points[i] = hz * float64(frameSize) / float64(sampleRate)
	}

	bank := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filter := make([]float64, nBins)
		left, center, right := points[m], points[m+1], points[m+2]
		for bin := 0; bin < nBins; bin++ {
			f := float64(bin)
			switch {
			case f < left || f > right:
				filter[bin] = 0
			case f <= center:
				if center > left {
					filter[bin] = (f - left) / (center - left)
				}
			default:
				if right > center {
					filter[bin] = (right - f) / (right - center)
				}
			}
		}
		bank[m] = filter
	}
	return bank
}

func applyFilterBank(bank [][]float64, spectrum []float64) []float64 {
	out := make([]float64, len(bank))
	for m, filter := range bank {
		var sum float64
		for bin, w := range filter {
			if bin < len(spectrum) {
				sum += w * spectrum[bin]
			}
		}
		out[m] = sum
	}
	return out
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// ToFloat32 narrows a mel frame to f32 for wire serialization.
func ToFloat32(frame []float64) []float32 {
	out := make([]float32, len(frame))
	for i, v := range frame {
		out[i] = float32(v)
	}
	return out
}
