package audio

import "fmt"

const (
	DefaultSampleRate = 22050 // mono analysis rate used by the ffmpeg decoder
	bytesPerSample    = 4     // f32le
)

// Signal is a decoded mono track. It is never mutated after decoding.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the signal length in seconds.
func (s *Signal) Duration() float64 {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// DecodeError reports audio that could not be read or has no samples.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
