package synth

import "fmt"

// ModelLoadError reports failure to construct a synthesizer for a model config.
type ModelLoadError struct {
	Path  string
	Cause error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Cause)
}

func (e *ModelLoadError) Unwrap() error { return e.Cause }

// BadConfigError reports a model-config file that could not be parsed or
// was missing the required audio.sample_rate field.
type BadConfigError struct {
	Path   string
	Reason string
}

func (e *BadConfigError) Error() string {
	return fmt.Sprintf("bad config %s: %s", e.Path, e.Reason)
}

// SynthError reports a failure from the underlying synthesizer mid-chunk.
type SynthError struct {
	ChunkIndex int
	Cause      error
}

func (e *SynthError) Error() string {
	return fmt.Sprintf("synth error at chunk %d: %v", e.ChunkIndex, e.Cause)
}

func (e *SynthError) Unwrap() error { return e.Cause }
