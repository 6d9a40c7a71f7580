// Package spectrum computes magnitude spectrograms and groups their bins
// into the bands that drive the visualisation.
//
// Spectrograms are immutable once built and safe to share between
// goroutines rendering different frames.
package spectrum

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/mjibson/go-dsp/window"

	"github.com/satindergrewal/musicviz/internal/audio"
)

const (
	DefaultWindowSize = 2048
	DefaultHopSize    = DefaultWindowSize / 4
	DefaultBands      = 10
)

var ErrEmptySignal = errors.New("spectrum: empty signal")

// Config sets the STFT framing.
type Config struct {
	WindowSize int
	HopSize    int
}

// DefaultConfig returns a 2048-sample window with 75% overlap.
func DefaultConfig() Config {
	return Config{WindowSize: DefaultWindowSize, HopSize: DefaultHopSize}
}

func (c Config) validate() error {
	if c.WindowSize < 2 {
		return fmt.Errorf("spectrum: window size must be >= 2: %d", c.WindowSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return fmt.Errorf("spectrum: hop size must be in [1,%d]: %d", c.WindowSize, c.HopSize)
	}
	return nil
}

// Spectrogram holds |STFT| magnitudes, stored frame-major.
type Spectrogram struct {
	mag        []float64
	bins       int
	frames     int
	sampleRate int
	hopSize    int
}

// Analyze computes the magnitude STFT of sig. Frames are centred on
// multiples of the hop size with window/2 zeros padded on both ends, so
// there are ceil(len/hop) frames of window/2+1 bins each.
func Analyze(sig *audio.Signal, cfg Config) (*Spectrogram, error) {
	if sig == nil || len(sig.Samples) == 0 {
		return nil, ErrEmptySignal
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := cfg.WindowSize
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("spectrum: fft plan: %w", err)
	}
	win := periodicHann(n)

	samples := sig.Samples
	bins := n/2 + 1
	frames := (len(samples) + cfg.HopSize - 1) / cfg.HopSize

	s := &Spectrogram{
		mag:        make([]float64, frames*bins),
		bins:       bins,
		frames:     frames,
		sampleRate: sig.SampleRate,
		hopSize:    cfg.HopSize,
	}

	in := make([]complex128, n)
	out := make([]complex128, n)
	re := make([]float64, bins)
	im := make([]float64, bins)
	half := n / 2

	for t := 0; t < frames; t++ {
		start := t*cfg.HopSize - half
		for k := 0; k < n; k++ {
			var v float64
			if idx := start + k; idx >= 0 && idx < len(samples) {
				v = samples[idx] * win[k]
			}
			in[k] = complex(v, 0)
		}
		if err := plan.Forward(out, in); err != nil {
			return nil, fmt.Errorf("spectrum: frame %d: %w", t, err)
		}
		for k := 0; k < bins; k++ {
			re[k] = real(out[k])
			im[k] = imag(out[k])
		}
		vecmath.Magnitude(s.mag[t*bins:(t+1)*bins], re, im)
	}
	return s, nil
}

// FromColumns builds a spectrogram from precomputed magnitude columns, one
// per frame. All columns must have the same non-zero length.
func FromColumns(columns [][]float64, sampleRate, hopSize int) (*Spectrogram, error) {
	if len(columns) == 0 || len(columns[0]) == 0 {
		return nil, ErrEmptySignal
	}
	bins := len(columns[0])
	s := &Spectrogram{
		mag:        make([]float64, 0, len(columns)*bins),
		bins:       bins,
		frames:     len(columns),
		sampleRate: sampleRate,
		hopSize:    hopSize,
	}
	for i, col := range columns {
		if len(col) != bins {
			return nil, fmt.Errorf("spectrum: column %d has %d bins, want %d", i, len(col), bins)
		}
		for _, v := range col {
			s.mag = append(s.mag, math.Abs(v))
		}
	}
	return s, nil
}

// Bins returns the number of frequency bins per frame.
func (s *Spectrogram) Bins() int { return s.bins }

// Frames returns the number of time frames.
func (s *Spectrogram) Frames() int { return s.frames }

// SampleRate returns the rate of the analysed signal.
func (s *Spectrogram) SampleRate() int { return s.sampleRate }

// HopSize returns the distance between frames in samples.
func (s *Spectrogram) HopSize() int { return s.hopSize }

// At returns the magnitude at (bin, frame), or 0 outside the spectrogram.
func (s *Spectrogram) At(bin, frame int) float64 {
	if bin < 0 || bin >= s.bins || frame < 0 || frame >= s.frames {
		return 0
	}
	return s.mag[frame*s.bins+bin]
}

// Column returns the magnitudes of one frame. The slice aliases the
// spectrogram and must not be modified.
func (s *Spectrogram) Column(frame int) []float64 {
	if frame < 0 || frame >= s.frames {
		return nil
	}
	return s.mag[frame*s.bins : (frame+1)*s.bins]
}

// Bands averages the column at frame into n contiguous groups of bins,
// low to high frequency. Frames outside [0, Frames()) yield n zeros.
func (s *Spectrogram) Bands(frame, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	col := s.Column(frame)
	if col == nil {
		return out
	}
	for i, r := range Partition(len(col), n) {
		if r.Len() == 0 {
			continue
		}
		var sum float64
		for _, v := range col[r.Start:r.End] {
			sum += v
		}
		out[i] = sum / float64(r.Len())
	}
	return out
}

// ColumnAt maps an output video frame to the spectrogram frame covering the
// same instant.
func (s *Spectrogram) ColumnAt(videoFrame int, fps float64) int {
	if fps <= 0 || s.hopSize <= 0 {
		return videoFrame
	}
	seconds := float64(videoFrame) / fps
	return int(math.Round(seconds * float64(s.sampleRate) / float64(s.hopSize)))
}

func periodicHann(n int) []float64 {
	return window.Hann(n + 1)[:n]
}
