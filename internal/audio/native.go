package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"gopkg.in/hraban/opus.v2"
)

const opusSampleRate = 48000

var errUnsupportedFormat = errors.New("unsupported format for native decoding")

// NativeDecoder decodes WAV, MP3 and Ogg Opus without FFmpeg. Samples are
// kept at the file's own sample rate and mixed down to mono.
type NativeDecoder struct{}

// Supports reports whether path has an extension the native decoders handle.
func (d *NativeDecoder) Supports(path string) bool {
	switch extOf(path) {
	case ".wav", ".mp3", ".opus", ".ogg":
		return true
	}
	return false
}

func (d *NativeDecoder) Decode(ctx context.Context, path string) (*Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	var sig *Signal
	switch extOf(path) {
	case ".wav":
		sig, err = decodeWAV(f)
	case ".mp3":
		sig, err = decodeMP3(f)
	case ".opus", ".ogg":
		sig, err = decodeOpus(f)
	default:
		err = errUnsupportedFormat
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if len(sig.Samples) == 0 {
		return nil, &DecodeError{Path: path, Err: ErrNoSamples}
	}
	return sig, nil
}

func decodeWAV(r io.ReadSeeker) (*Signal, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %w", errUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav pcm: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	depth := int(d.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float64(int64(1) << (depth - 1))

	samples := downmix(len(buf.Data)/channels, channels, func(i int) float64 {
		return float64(buf.Data[i]) / scale
	})
	return &Signal{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(r io.Reader) (*Signal, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}
	const channels = 2
	frames := len(raw) / (2 * channels)
	samples := downmix(frames, channels, func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	})
	return &Signal{Samples: samples, SampleRate: d.SampleRate()}, nil
}

func decodeOpus(r io.Reader) (*Signal, error) {
	br := bufio.NewReader(r)
	channels, err := opusChannels(br)
	if err != nil {
		return nil, err
	}

	s, err := opus.NewStream(br)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	defer s.Close()

	var pcm []float32
	chunk := make([]float32, 5760*channels) // 120ms at 48kHz, the largest opus frame
	for {
		n, err := s.ReadFloat32(chunk)
		if n > 0 {
			pcm = append(pcm, chunk[:n*channels]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus read: %w", err)
		}
	}

	samples := downmix(len(pcm)/channels, channels, func(i int) float64 {
		return float64(pcm[i])
	})
	return &Signal{Samples: samples, SampleRate: opusSampleRate}, nil
}

// opusChannels reads the channel count from the OpusHead packet, which
// always sits in the first Ogg page.
func opusChannels(br *bufio.Reader) (int, error) {
	head, _ := br.Peek(512)
	idx := bytes.Index(head, []byte("OpusHead"))
	if idx < 0 || idx+9 >= len(head) {
		return 0, fmt.Errorf("not an ogg opus stream: %w", errUnsupportedFormat)
	}
	channels := int(head[idx+9])
	if channels == 0 {
		return 0, errors.New("opus header has zero channels")
	}
	return channels, nil
}

// downmix averages interleaved channels into one. at returns the
// interleaved sample at index i.
func downmix(frames, channels int, at func(i int) float64) []float64 {
	out := make([]float64, frames)
	for f := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += at(f*channels + c)
		}
		out[f] = sum / float64(channels)
	}
	return out
}
