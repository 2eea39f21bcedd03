// Package audio converts f32 PCM to WAV and derives mel-spectrogram frames
// for the streaming visualization path.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// EncodeWAV encodes f32 PCM samples (expected in [-1.0, 1.0]) as a
// RIFF/WAVE, mono, 16-bit little-endian container. Each sample is
// converted via round-half-away-from-zero, not truncation.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		val := int16(math.Round(float64(clamped) * 32767))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// EncodeWAVBase64 encodes samples as WAV and returns the standard-alphabet
// base64 encoding with padding, per spec.md §6.5.
func EncodeWAVBase64(samples []float32, sampleRate int) string {
	return base64.StdEncoding.EncodeToString(EncodeWAV(samples, sampleRate))
}
