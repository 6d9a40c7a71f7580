package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// PixelFormat is the raw byte order handed to the encoder.
type PixelFormat string

const (
	RGBA PixelFormat = "rgba"
	BGRA PixelFormat = "bgra"
)

// ParsePixelFormat parses a pixel format name. The empty string means RGBA.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch PixelFormat(strings.ToLower(s)) {
	case "", RGBA:
		return RGBA, nil
	case BGRA:
		return BGRA, nil
	}
	return "", fmt.Errorf("unknown pixel format %q", s)
}

// FrameSink consumes frames in order.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// SinkConfig describes the raw video stream fed to FFmpeg.
type SinkConfig struct {
	FFmpegPath    string
	Width, Height int
	FPS           float64
	PixelFormat   PixelFormat
	Codec         Candidate
}

// FFmpegSink pipes raw frames into an FFmpeg process writing a silent video.
type FFmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	width, height int
	format        PixelFormat
	swizzled      []byte
	frame         int
}

// StartSink starts FFmpeg reading rawvideo from stdin and writing path.
func StartSink(ctx context.Context, cfg SinkConfig, path string) (*FFmpegSink, error) {
	format := cfg.PixelFormat
	if format == "" {
		format = RGBA
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", string(format),
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", formatFPS(cfg.FPS),
		"-i", "pipe:0",
		"-an",
		"-c:v", cfg.Codec.Encoder,
	}
	args = append(args, cfg.Codec.Args...)
	args = append(args, "-pix_fmt", "yuv420p", path)

	cmd := exec.CommandContext(ctx, ffmpegBin(cfg.FFmpegPath), args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &FFmpegSink{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		width:  cfg.Width,
		height: cfg.Height,
		format: format,
	}
	if format == BGRA {
		s.swizzled = make([]byte, cfg.Width*cfg.Height*4)
	}
	return s, nil
}

// WriteFrame sends one frame. Every call consumes a frame number, so a
// failed frame leaves a gap rather than shifting the ones after it.
func (s *FFmpegSink) WriteFrame(img *image.RGBA) error {
	n := s.frame
	s.frame++

	if err := checkFrame(img, s.width, s.height); err != nil {
		return &FrameWriteError{Frame: n, Err: err}
	}
	buf := img.Pix
	if s.format == BGRA {
		swizzle(s.swizzled, img.Pix)
		buf = s.swizzled
	}
	if _, err := s.stdin.Write(buf); err != nil {
		return &FrameWriteError{Frame: n, Err: err}
	}
	return nil
}

// Close flushes stdin and waits for FFmpeg to finish the file.
func (s *FFmpegSink) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(msg))
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func checkFrame(img *image.RGBA, w, h int) error {
	if img == nil {
		return fmt.Errorf("nil frame")
	}
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("frame is %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}
	if img.Stride != w*4 || len(img.Pix) != w*h*4 {
		return fmt.Errorf("frame is not a tightly packed %dx%d buffer", w, h)
	}
	return nil
}

// swizzle copies RGBA pixels into dst as BGRA.
func swizzle(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

func ffmpegBin(path string) string {
	if path == "" {
		return "ffmpeg"
	}
	return path
}
