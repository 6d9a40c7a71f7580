// Package video turns rendered frames into video files with FFmpeg: codec
// selection, the raw frame pipe, and the final audio mux.
package video

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Encoder opens frame sinks using the first codec its selector accepts.
type Encoder struct {
	FFmpegPath    string
	Width, Height int
	FPS           float64
	PixelFormat   PixelFormat

	selector *Selector
	start    func(ctx context.Context, cfg SinkConfig, path string) (FrameSink, error)
}

// NewEncoder builds an encoder that probes codecs with FFmpeg.
func NewEncoder(ffmpegPath string, width, height int, fps float64, format PixelFormat, codecs []string, log logrus.FieldLogger) *Encoder {
	prober := &FFmpegProber{Path: ffmpegPath, Width: width, Height: height, FPS: fps}
	return &Encoder{
		FFmpegPath:  ffmpegPath,
		Width:       width,
		Height:      height,
		FPS:         fps,
		PixelFormat: format,
		selector:    NewSelector(prober, Candidates(codecs), log),
		start:       startFFmpegSink,
	}
}

func startFFmpegSink(ctx context.Context, cfg SinkConfig, path string) (FrameSink, error) {
	return StartSink(ctx, cfg, path)
}

// Selector exposes the codec selector, e.g. for reporting attempts.
func (e *Encoder) Selector() *Selector { return e.selector }

// Open starts a sink writing path and returns the codec name in use. A codec
// that passed its probe but fails to start is rejected and the next one is
// tried.
func (e *Encoder) Open(ctx context.Context, path string) (FrameSink, string, error) {
	for {
		c, err := e.selector.Select(ctx)
		if err != nil {
			return nil, "", err
		}
		sink, err := e.start(ctx, SinkConfig{
			FFmpegPath:  e.FFmpegPath,
			Width:       e.Width,
			Height:      e.Height,
			FPS:         e.FPS,
			PixelFormat: e.PixelFormat,
			Codec:       c,
		}, path)
		if err == nil {
			return sink, c.Name, nil
		}
		if ctx.Err() != nil {
			return nil, c.Name, ctx.Err()
		}
		e.selector.Reject(c, err)
	}
}
