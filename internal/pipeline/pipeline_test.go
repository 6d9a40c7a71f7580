package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/musicviz/internal/audio"
	"github.com/satindergrewal/musicviz/internal/spectrum"
	"github.com/satindergrewal/musicviz/internal/testutil"
	"github.com/satindergrewal/musicviz/internal/video"
)

// --- fakes ---

type fakeDecoder struct {
	sig  *audio.Signal
	fail map[string]bool
}

func (d *fakeDecoder) Decode(ctx context.Context, path string) (*audio.Signal, error) {
	if d.fail[filepath.Base(path)] {
		return nil, &audio.DecodeError{Path: path, Err: errors.New("corrupt")}
	}
	return d.sig, nil
}

type recordingSink struct {
	frames []*image.RGBA
	fail   func(frame int) bool
	n      int
	closed bool
}

func (s *recordingSink) WriteFrame(img *image.RGBA) error {
	n := s.n
	s.n++
	if s.fail != nil && s.fail(n) {
		return &video.FrameWriteError{Frame: n, Err: errors.New("encoder hiccup")}
	}
	s.frames = append(s.frames, img)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	sink   *recordingSink
	err    error
	opened []string
}

func (o *fakeOpener) Open(ctx context.Context, path string) (video.FrameSink, string, error) {
	if o.err != nil {
		return nil, "", o.err
	}
	o.opened = append(o.opened, path)
	if err := os.WriteFile(path, []byte("silent:"+filepath.Base(path)), 0o644); err != nil {
		return nil, "", err
	}
	if o.sink == nil {
		o.sink = &recordingSink{}
	}
	return o.sink, "mp4v", nil
}

type fakeMuxer struct {
	fail bool
}

func (m *fakeMuxer) Mux(ctx context.Context, silent, audioPath, out string) error {
	if m.fail {
		if err := video.Keep(silent, out); err != nil {
			return err
		}
		return &video.MuxError{Output: out, Err: errors.New("mux tool exited 1")}
	}
	os.Remove(silent)
	return os.WriteFile(out, []byte("muxed"), 0o644)
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func oneSecondSine() *audio.Signal {
	return &audio.Signal{Samples: testutil.Sine(440, 22050, 0.8, 22050), SampleRate: 22050}
}

func testOptions(dir string) Options {
	return Options{
		Width:     80,
		Height:    60,
		FPS:       30,
		Bands:     10,
		Workers:   4,
		OutputDir: dir,
		OutputExt: ".mp4",
		MuxAudio:  true,
	}
}

// --- RenderFile ---

func TestRenderFileOneSecondSine(t *testing.T) {
	dir := t.TempDir()
	sig := oneSecondSine()
	enc := &fakeOpener{}
	p := New(&fakeDecoder{sig: sig}, enc, &fakeMuxer{}, testOptions(dir), quietLog())

	out := filepath.Join(dir, "tone.mp4")
	res := p.RenderFile(context.Background(), "tone.wav", out)
	if res.Err != nil {
		t.Fatalf("RenderFile: %v", res.Err)
	}
	if res.Frames != 30 || res.Written != 30 || res.Skipped != 0 {
		t.Errorf("frames=%d written=%d skipped=%d, want 30/30/0", res.Frames, res.Written, res.Skipped)
	}
	if !res.Muxed || res.Codec != "mp4v" {
		t.Errorf("muxed=%v codec=%q", res.Muxed, res.Codec)
	}
	if res.Audio != time.Second {
		t.Errorf("Audio = %v, want 1s", res.Audio)
	}
	if !enc.sink.closed {
		t.Error("sink not closed")
	}

	// Frames must arrive in index order even with several workers.
	spec, err := spectrum.Analyze(sig, spectrum.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.sink.frames) != 30 {
		t.Fatalf("sink got %d frames, want 30", len(enc.sink.frames))
	}
	for i, img := range enc.sink.frames {
		if want := p.renderer.Render(spec, i); !bytes.Equal(img.Pix, want.Pix) {
			t.Errorf("frame %d out of order or corrupted", i)
		}
	}

	// Frame 0 has phase sin(0) = 0, so every circle sits on the centre line.
	for i, c := range p.renderer.Circles(spec, 0) {
		if c.Y != 30 {
			t.Errorf("frame 0 circle %d y = %v, want 30", i, c.Y)
		}
	}

	got, err := os.ReadFile(out)
	if err != nil || string(got) != "muxed" {
		t.Errorf("output = %q, %v", got, err)
	}
	if _, err := os.Stat(video.SilentPath(out)); !os.IsNotExist(err) {
		t.Error("silent video left behind")
	}
}

func TestRenderFileSkipsFailedFrames(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{fail: func(n int) bool { return n == 3 || n == 7 }}
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{sink: sink}, &fakeMuxer{}, testOptions(dir), quietLog())

	res := p.RenderFile(context.Background(), "tone.wav", filepath.Join(dir, "tone.mp4"))
	if res.Err != nil {
		t.Fatalf("RenderFile: %v", res.Err)
	}
	if res.Written != 28 || res.Skipped != 2 {
		t.Errorf("written=%d skipped=%d, want 28/2", res.Written, res.Skipped)
	}
}

func TestRenderFileGivesUpAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{fail: func(int) bool { return true }}
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{sink: sink}, &fakeMuxer{}, testOptions(dir), quietLog())

	out := filepath.Join(dir, "tone.mp4")
	res := p.RenderFile(context.Background(), "tone.wav", out)
	var fwe *video.FrameWriteError
	if !errors.As(res.Err, &fwe) {
		t.Fatalf("err = %v, want wrapped *FrameWriteError", res.Err)
	}
	if res.Skipped != DefaultMaxWriteErrors {
		t.Errorf("skipped = %d, want %d", res.Skipped, DefaultMaxWriteErrors)
	}
	if !sink.closed {
		t.Error("sink should be closed after giving up")
	}
	if _, err := os.Stat(video.SilentPath(out)); !os.IsNotExist(err) {
		t.Error("partial silent video left behind")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output expected for an abandoned file")
	}
}

func TestRenderFileMuxFailureKeepsVideo(t *testing.T) {
	dir := t.TempDir()
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{}, &fakeMuxer{fail: true}, testOptions(dir), quietLog())

	out := filepath.Join(dir, "tone.mp4")
	res := p.RenderFile(context.Background(), "tone.wav", out)
	if res.Err != nil {
		t.Fatalf("mux failure should not fail the file: %v", res.Err)
	}
	var me *video.MuxError
	if !errors.As(res.MuxError, &me) {
		t.Errorf("MuxError = %v", res.MuxError)
	}
	if res.Muxed {
		t.Error("Muxed should be false")
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if want := "silent:" + filepath.Base(video.SilentPath(out)); string(got) != want {
		t.Errorf("output = %q, want the silent video", got)
	}
}

func TestRenderFileWithoutMux(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.MuxAudio = false
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{}, &fakeMuxer{}, opts, quietLog())

	out := filepath.Join(dir, "tone.mp4")
	res := p.RenderFile(context.Background(), "tone.wav", out)
	if res.Err != nil || res.Muxed {
		t.Fatalf("res = %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestRenderFileTooShort(t *testing.T) {
	dir := t.TempDir()
	sig := &audio.Signal{Samples: make([]float64, 100), SampleRate: 22050}
	enc := &fakeOpener{}
	p := New(&fakeDecoder{sig: sig}, enc, &fakeMuxer{}, testOptions(dir), quietLog())

	res := p.RenderFile(context.Background(), "blip.wav", filepath.Join(dir, "blip.mp4"))
	if !errors.Is(res.Err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", res.Err)
	}
	if len(enc.opened) != 0 {
		t.Error("encoder should not be opened")
	}
}

func TestRenderFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{fail: func(n int) bool {
		if n == 5 {
			cancel()
		}
		return false
	}}
	dir := t.TempDir()
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{sink: sink}, &fakeMuxer{}, testOptions(dir), quietLog())

	res := p.RenderFile(ctx, "tone.wav", filepath.Join(dir, "tone.mp4"))
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.Err)
	}
}

// --- Run / RunDir ---

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunDirNothingToDo(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "notes.txt")
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{}, &fakeMuxer{}, testOptions(out), quietLog())

	results, err := p.RunDir(context.Background(), in, []string{".mp3", ".wav"})
	if err != nil {
		t.Fatalf("RunDir: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}

	results, err = p.RunDir(context.Background(), filepath.Join(in, "missing"), []string{".wav"})
	if err != nil || len(results) != 0 {
		t.Errorf("missing dir: results=%v err=%v", results, err)
	}
}

func TestRunDirIsolatesFailures(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "output")
	touch(t, in, "c.wav", "a.wav", "b.MP3", "skip.txt")

	dec := &fakeDecoder{sig: oneSecondSine(), fail: map[string]bool{"b.MP3": true}}
	p := New(dec, &fakeOpener{}, &fakeMuxer{}, testOptions(out), quietLog())

	results, err := p.RunDir(context.Background(), in, []string{".mp3", ".wav"})
	if err != nil {
		t.Fatalf("RunDir: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	want := []struct {
		base string
		ok   bool
	}{{"a.wav", true}, {"b.MP3", false}, {"c.wav", true}}
	for i, w := range want {
		r := results[i]
		if filepath.Base(r.Input) != w.base {
			t.Errorf("result %d input = %s, want %s", i, r.Input, w.base)
		}
		if (r.Err == nil) != w.ok {
			t.Errorf("%s: err = %v", w.base, r.Err)
		}
	}
	var de *audio.DecodeError
	if !errors.As(results[1].Err, &de) {
		t.Errorf("b.MP3 err = %v, want *DecodeError", results[1].Err)
	}
	for _, name := range []string{"a.mp4", "c.mp4"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}

func TestRunStopsWithoutEncoder(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "a.wav", "b.wav")

	unavailable := &video.EncoderUnavailableError{Attempts: []video.Attempt{{
		Candidate: video.Candidate{Name: "mp4v"}, State: video.Failed, Err: fmt.Errorf("missing"),
	}}}
	p := New(&fakeDecoder{sig: oneSecondSine()}, &fakeOpener{err: unavailable}, &fakeMuxer{}, testOptions(out), quietLog())

	results, err := p.RunDir(context.Background(), in, []string{".wav"})
	var eu *video.EncoderUnavailableError
	if !errors.As(err, &eu) {
		t.Fatalf("err = %v, want *EncoderUnavailableError", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

// --- discovery ---

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.wav", "A.MP3", "c.ogg", ".hidden.wav", "d.flac", "e.txt")
	if err := os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir, []string{".mp3", ".wav", ".ogg"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A.MP3", "b.wav", "c.ogg"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("file %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{filepath.Join("downloads", "song.mp3"), filepath.Join("output", "song.mp4")},
		{"track.v2.wav", filepath.Join("output", "track.v2.mp4")},
		{"noext", filepath.Join("output", "noext.mp4")},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.in, "output", ".mp4"); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- report ---

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportName)
	results := []Result{
		{Input: "a.wav", Output: "out/a.mp4", Codec: "mp4v", Frames: 30, Written: 29, Skipped: 1, Muxed: true, Audio: time.Second},
		{Input: "b.mp3", Output: "out/b.mp4", Err: errors.New("decode b.mp3: corrupt")},
		{Input: "c.ogg", Output: "out/c.mp4", Frames: 60, Written: 60, MuxError: errors.New("mux failed")},
	}
	if err := WriteReport(path, results); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	r, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if len(r.Files) != 3 {
		t.Fatalf("files = %d, want 3", len(r.Files))
	}
	if f := r.Files[0]; f.Codec != "mp4v" || f.Skipped != 1 || !f.Muxed || f.AudioSeconds != 1 {
		t.Errorf("file 0 = %+v", f)
	}
	if f := r.Files[1]; f.Error == "" || f.Output != "" {
		t.Errorf("failed file should carry its error and no output: %+v", f)
	}
	if f := r.Files[2]; f.MuxError != "mux failed" || f.Muxed {
		t.Errorf("file 2 = %+v", f)
	}
	if r.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}
