package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PiperSynth is a Synth backed by a Piper-style HTTP synthesis sidecar,
// grounded on the donor's pipeline.TTSClient. It satisfies the Synth
// interface used by the Synthesizer Cache and Chunked Synthesis Pipeline,
// so the same cache/pipeline code works whether the handle is this HTTP
// sidecar or an in-process test double.
type PiperSynth struct {
	url       string
	voice     string
	speakerID *int64
	client    *http.Client
}

// NewPiperSynth creates a sidecar-backed synthesizer for one voice. speakerID
// selects a speaker within a multi-speaker model; nil uses the sidecar's
// default speaker for the voice.
func NewPiperSynth(url, voice string, speakerID *int64, client *http.Client) *PiperSynth {
	return &PiperSynth{url: url, voice: voice, speakerID: speakerID, client: client}
}

// Decode posts text to the sidecar and decodes its WAV response into one
// f32 PCM sub-buffer, then emits it. The sidecar returns a single buffer
// per call rather than a multi-part stream, so emit is invoked exactly once
// on success.
func (p *PiperSynth) Decode(ctx context.Context, text string, emit func([]float32) error) error {
	body, err := json.Marshal(struct {
		Text      string `json:"text"`
		Voice     string `json:"voice"`
		SpeakerID *int64 `json:"speaker_id,omitempty"`
	}{Text: text, Voice: p.voice, SpeakerID: p.speakerID})
	if err != nil {
		return fmt.Errorf("marshal synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("synth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("synth sidecar status %d: %s", resp.StatusCode, respBody)
	}

	wavBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read synth response: %w", err)
	}

	samples, err := decodeWAVPCM(wavBytes)
	if err != nil {
		return fmt.Errorf("decode synth wav: %w", err)
	}

	return emit(samples)
}

// decodeWAVPCM extracts 16-bit little-endian mono PCM samples from a
// RIFF/WAVE byte buffer, the inverse of audio.EncodeWAV.
func decodeWAVPCM(wav []byte) ([]float32, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE buffer")
	}
	offset := 12
	var data []byte
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		start := offset + 8
		if start+size > len(wav) {
			break
		}
		if id == "data" {
			data = wav[start : start+size]
			break
		}
		offset = start + size
	}
	if data == nil {
		return nil, fmt.Errorf("no data chunk found")
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(v) / 32767.0
	}
	return samples, nil
}

// NewHTTPClient builds a timeout-bounded client for the sidecar calls above.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
