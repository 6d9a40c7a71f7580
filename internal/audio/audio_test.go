package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/satindergrewal/musicviz/internal/testutil"
)

// --- Signal ---

func TestSignalDuration(t *testing.T) {
	tests := []struct {
		name string
		sig  *Signal
		want float64
	}{
		{"nil", nil, 0},
		{"zero rate", &Signal{Samples: make([]float64, 100)}, 0},
		{"one second", &Signal{Samples: make([]float64, 22050), SampleRate: 22050}, 1},
		{"half second", &Signal{Samples: make([]float64, 24000), SampleRate: 48000}, 0.5},
	}
	for _, tt := range tests {
		if got := tt.sig.Duration(); got != tt.want {
			t.Errorf("%s: Duration() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// --- f32le parsing ---

func TestSamplesFromF32LE(t *testing.T) {
	want := []float32{0, 0.5, -0.25, 1, -1}
	buf := make([]byte, len(want)*4)
	for i, v := range want {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	got := SamplesFromF32LE(buf)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, v := range want {
		if got[i] != float64(v) {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], v)
		}
	}
}

func TestSamplesFromF32LEDropsPartialSample(t *testing.T) {
	buf := make([]byte, 4*3+2)
	if got := len(SamplesFromF32LE(buf)); got != 3 {
		t.Errorf("len = %d, want 3", got)
	}
}

// --- downmix ---

func TestDownmixAveragesChannels(t *testing.T) {
	interleaved := []float64{1, 0, 0.5, 0.5, -1, 1}
	got := downmix(3, 2, func(i int) float64 { return interleaved[i] })
	want := []float64{0.5, 0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

// --- native decoding ---

func TestNativeDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	testutil.WriteWAV(t, path, testutil.Sine(440, 22050, 0.8, 22050), 22050, 1)

	d := &NativeDecoder{}
	sig, err := d.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sig.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", sig.SampleRate)
	}
	if len(sig.Samples) != 22050 {
		t.Errorf("len(Samples) = %d, want 22050", len(sig.Samples))
	}
	if d := sig.Duration(); d != 1 {
		t.Errorf("Duration = %v, want 1", d)
	}

	peak := 0.0
	for _, s := range sig.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	if math.Abs(peak-0.8) > 0.01 {
		t.Errorf("peak amplitude = %v, want ~0.8", peak)
	}
}

func TestNativeDecodeWAVStereoDownmix(t *testing.T) {
	// left = +0.5, right = -0.5 cancels to silence
	frames := 1000
	interleaved := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		interleaved[2*i] = 0.5
		interleaved[2*i+1] = -0.5
	}
	path := filepath.Join(t.TempDir(), "stereo.wav")
	testutil.WriteWAV(t, path, interleaved, 44100, 2)

	sig, err := (&NativeDecoder{}).Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sig.Samples) != frames {
		t.Fatalf("len(Samples) = %d, want %d", len(sig.Samples), frames)
	}
	for i, s := range sig.Samples {
		if math.Abs(s) > 1e-4 {
			t.Fatalf("sample[%d] = %v, want ~0", i, s)
		}
	}
}

func TestNativeDecodeMissingFile(t *testing.T) {
	_, err := (&NativeDecoder{}).Decode(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err should wrap os.ErrNotExist: %v", err)
	}
}

func TestNativeDecodeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := (&NativeDecoder{}).Decode(context.Background(), path)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
}

func TestNativeDecodeUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.flac")
	if err := os.WriteFile(path, []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}
	d := &NativeDecoder{}
	if d.Supports(path) {
		t.Errorf("Supports(%q) = true, want false", path)
	}
	_, err := d.Decode(context.Background(), path)
	if !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("err = %v, want errUnsupportedFormat", err)
	}
}

func TestOpusChannelsFromHeader(t *testing.T) {
	page := make([]byte, 28)
	copy(page, "OggS")
	head := append(page, []byte("OpusHead")...)
	head = append(head, 1, 2) // version, channels
	head = append(head, make([]byte, 9)...)

	got, err := opusChannels(newPeekReader(head))
	if err != nil {
		t.Fatalf("opusChannels: %v", err)
	}
	if got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}

	if _, err := opusChannels(newPeekReader([]byte("OggS vorbis"))); err == nil {
		t.Error("expected error for a non-opus stream")
	}
}

// --- FFmpeg decoder ---

func TestFFmpegDecodeMissingFile(t *testing.T) {
	d := &FFmpegDecoder{Path: "ffmpeg", SampleRate: DefaultSampleRate}
	_, err := d.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
}

func TestNewDecoderKinds(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"", false},
		{"ffmpeg", false},
		{"FFmpeg", false},
		{"native", false},
		{"auto", false},
		{"gstreamer", true},
	}
	for _, tt := range tests {
		d, err := NewDecoder(tt.kind, "ffmpeg", 22050)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewDecoder(%q) err = %v, wantErr %v", tt.kind, err, tt.wantErr)
		}
		if !tt.wantErr && d == nil {
			t.Errorf("NewDecoder(%q) returned nil decoder", tt.kind)
		}
	}
}

func TestAutoDecoderPrefersNative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	testutil.WriteWAV(t, path, testutil.Sine(220, 8000, 0.5, 800), 8000, 1)

	// A broken ffmpeg path proves the wav never reached it.
	d := &AutoDecoder{
		Native: &NativeDecoder{},
		FFmpeg: &FFmpegDecoder{Path: filepath.Join(t.TempDir(), "no-ffmpeg")},
	}
	sig, err := d.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sig.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", sig.SampleRate)
	}
}

func TestAutoDecoderFallsBackForVorbis(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "fake-ffmpeg")
	// Emits two f32le samples: 1.0 and 0.5.
	script := "#!/bin/sh\nprintf '\\000\\000\\200\\077\\000\\000\\000\\077'\n"
	if err := os.WriteFile(ffmpeg, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "song.ogg")
	vorbis := append([]byte("OggS"), make([]byte, 24)...)
	vorbis = append(vorbis, append([]byte{1}, []byte("vorbis")...)...)
	if err := os.WriteFile(path, vorbis, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := (&NativeDecoder{}).Decode(context.Background(), path); !errors.Is(err, errUnsupportedFormat) {
		t.Fatalf("native err = %v, want errUnsupportedFormat", err)
	}

	d := &AutoDecoder{
		Native: &NativeDecoder{},
		FFmpeg: &FFmpegDecoder{Path: ffmpeg, SampleRate: 8000},
	}
	sig, err := d.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sig.Samples) != 2 || sig.Samples[0] != 1 || sig.Samples[1] != 0.5 {
		t.Errorf("samples = %v, want [1 0.5]", sig.Samples)
	}
	if sig.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", sig.SampleRate)
	}
}

func TestAutoDecoderKeepsNativeErrors(t *testing.T) {
	// A missing file is not a format problem, so FFmpeg is never tried.
	d := &AutoDecoder{
		Native: &NativeDecoder{},
		FFmpeg: &FFmpegDecoder{Path: filepath.Join(t.TempDir(), "no-ffmpeg")},
	}
	_, err := d.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func newPeekReader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}
