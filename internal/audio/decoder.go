package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoSamples is wrapped by a DecodeError when the input decodes to zero duration.
var ErrNoSamples = errors.New("no audio samples")

// Decoder turns an audio file into a mono Signal.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Signal, error)
}

// FFmpegDecoder runs FFmpeg to decode any supported container to mono f32le
// at a fixed sample rate.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
}

// Decode runs FFmpeg on path and returns the decoded mono signal.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Signal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	bin := d.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, &DecodeError{Path: path, Err: err}
	}

	samples := SamplesFromF32LE(out)
	if len(samples) == 0 {
		return nil, &DecodeError{Path: path, Err: ErrNoSamples}
	}
	return &Signal{Samples: samples, SampleRate: rate}, nil
}

// SamplesFromF32LE converts little-endian float32 PCM to float64 samples.
// A trailing partial sample is dropped.
func SamplesFromF32LE(b []byte) []float64 {
	n := len(b) / bytesPerSample
	samples := make([]float64, n)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(b[i*bytesPerSample:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples
}

// AutoDecoder decodes natively when the extension is supported and falls
// back to FFmpeg otherwise. A file whose contents the native decoders do not
// recognize, such as Ogg Vorbis behind a .ogg name, also goes to FFmpeg.
type AutoDecoder struct {
	Native *NativeDecoder
	FFmpeg *FFmpegDecoder
}

func (d *AutoDecoder) Decode(ctx context.Context, path string) (*Signal, error) {
	if !d.Native.Supports(path) {
		return d.FFmpeg.Decode(ctx, path)
	}
	sig, err := d.Native.Decode(ctx, path)
	if err != nil && errors.Is(err, errUnsupportedFormat) {
		return d.FFmpeg.Decode(ctx, path)
	}
	return sig, err
}

// NewDecoder returns the decoder for kind: "ffmpeg", "native" or "auto".
func NewDecoder(kind, ffmpegPath string, sampleRate int) (Decoder, error) {
	ff := &FFmpegDecoder{Path: ffmpegPath, SampleRate: sampleRate}
	switch strings.ToLower(kind) {
	case "", "ffmpeg":
		return ff, nil
	case "native":
		return &NativeDecoder{}, nil
	case "auto":
		return &AutoDecoder{Native: &NativeDecoder{}, FFmpeg: ff}, nil
	default:
		return nil, fmt.Errorf("unknown audio decoder %q", kind)
	}
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
