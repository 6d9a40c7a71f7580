// Package pipeline drives one audio file through decode, analysis,
// rendering, encoding and muxing, and runs that over a directory of files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/musicviz/internal/audio"
	"github.com/satindergrewal/musicviz/internal/config"
	"github.com/satindergrewal/musicviz/internal/spectrum"
	"github.com/satindergrewal/musicviz/internal/video"
	"github.com/satindergrewal/musicviz/internal/visual"
)

// DefaultMaxWriteErrors is how many frames in a row may fail before a file
// is abandoned.
const DefaultMaxWriteErrors = 25

// ErrTooShort is returned for audio shorter than one video frame.
var ErrTooShort = errors.New("audio shorter than one video frame")

// Opener starts a frame sink writing path and reports the codec used.
type Opener interface {
	Open(ctx context.Context, path string) (video.FrameSink, string, error)
}

// Muxer merges a silent video with an audio file into out.
type Muxer interface {
	Mux(ctx context.Context, silent, audioPath, out string) error
}

// Options are the per-run rendering settings.
type Options struct {
	Width, Height int
	FPS           float64
	Bands         int
	Sync          visual.Sync
	Analysis      spectrum.Config
	Workers       int

	OutputDir string
	OutputExt string
	MuxAudio  bool

	Progress       bool
	ProgressOutput io.Writer

	MaxWriteErrors int
}

// Result describes what happened to one input file.
type Result struct {
	Input    string
	Output   string
	Codec    string
	Frames   int
	Written  int
	Skipped  int
	Muxed    bool
	Audio    time.Duration
	Elapsed  time.Duration
	MuxError error
	Err      error
}

// Pipeline renders audio files to videos.
type Pipeline struct {
	decoder  audio.Decoder
	encoder  Opener
	muxer    Muxer
	renderer *visual.Renderer
	opts     Options
	log      logrus.FieldLogger
}

// New assembles a pipeline from its collaborators.
func New(dec audio.Decoder, enc Opener, mux Muxer, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxWriteErrors <= 0 {
		opts.MaxWriteErrors = DefaultMaxWriteErrors
	}
	if opts.Analysis == (spectrum.Config{}) {
		opts.Analysis = spectrum.DefaultConfig()
	}
	if opts.OutputExt == "" {
		opts.OutputExt = ".mp4"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := visual.NewRenderer(opts.Width, opts.Height, opts.Bands)
	r.Sync = opts.Sync
	r.FPS = opts.FPS

	return &Pipeline{
		decoder:  dec,
		encoder:  enc,
		muxer:    mux,
		renderer: r,
		opts:     opts,
		log:      log,
	}
}

// FromConfig builds a pipeline backed by FFmpeg as configured.
func FromConfig(cfg config.Config, log logrus.FieldLogger) (*Pipeline, error) {
	dec, err := audio.NewDecoder(cfg.Audio.Decoder, cfg.FFmpegPath, cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	format, err := video.ParsePixelFormat(cfg.Video.PixelFormat)
	if err != nil {
		return nil, err
	}
	sync, err := visual.ParseSync(cfg.Analysis.Sync)
	if err != nil {
		return nil, err
	}

	enc := video.NewEncoder(cfg.FFmpegPath, cfg.Video.Width, cfg.Video.Height, cfg.Video.FPS, format, cfg.Video.Codecs, log)
	mux := &video.Muxer{FFmpegPath: cfg.FFmpegPath, AudioCodec: cfg.Video.AudioCodec, Log: log}

	return New(dec, enc, mux, Options{
		Width:          cfg.Video.Width,
		Height:         cfg.Video.Height,
		FPS:            cfg.Video.FPS,
		Bands:          cfg.Analysis.Bands,
		Sync:           sync,
		Analysis:       spectrum.Config{WindowSize: cfg.Analysis.WindowSize, HopSize: cfg.Analysis.HopSize},
		Workers:        cfg.Workers(),
		OutputDir:      cfg.OutputDir,
		OutputExt:      cfg.OutputExt,
		MuxAudio:       cfg.Video.MuxAudio,
		Progress:       cfg.Progress,
		ProgressOutput: os.Stderr,
	}, log), nil
}

// OutputPath returns the video path for input inside the output directory.
func (p *Pipeline) OutputPath(input string) string {
	return OutputPath(input, p.opts.OutputDir, p.opts.OutputExt)
}

// Process renders one input into the output directory.
func (p *Pipeline) Process(ctx context.Context, input string) Result {
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return Result{Input: input, Err: fmt.Errorf("create output dir: %w", err)}
	}
	return p.RenderFile(ctx, input, p.OutputPath(input))
}

// RenderFile renders input into the video out.
func (p *Pipeline) RenderFile(ctx context.Context, input, out string) (res Result) {
	start := time.Now()
	res = Result{Input: input, Output: out}
	log := p.log.WithField("file", filepath.Base(input))

	defer func() {
		res.Elapsed = time.Since(start)
	}()

	log.Info("Processing")
	sig, err := p.decoder.Decode(ctx, input)
	if err != nil {
		res.Err = err
		return res
	}
	res.Audio = time.Duration(sig.Duration() * float64(time.Second))
	log.WithField("stage", "decode").Debugf("Decoded %d samples at %d Hz", len(sig.Samples), sig.SampleRate)

	spec, err := spectrum.Analyze(sig, p.opts.Analysis)
	if err != nil {
		res.Err = fmt.Errorf("analyze: %w", err)
		return res
	}
	log.WithField("stage", "analyze").Debugf("Spectrogram %d bins x %d frames", spec.Bins(), spec.Frames())

	res.Frames = int(sig.Duration() * p.opts.FPS)
	if res.Frames <= 0 {
		res.Err = ErrTooShort
		return res
	}

	silent := video.SilentPath(out)
	sink, codec, err := p.encoder.Open(ctx, silent)
	res.Codec = codec
	if err != nil {
		res.Err = err
		return res
	}
	log = log.WithField("codec", codec)

	bar := newFrameProgress(p.opts.Progress, p.opts.ProgressOutput, filepath.Base(input), res.Frames)
	res.Written, res.Skipped, err = p.renderFrames(ctx, log, spec, res.Frames, sink, bar)
	bar.Done(err == nil)

	if closeErr := sink.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("finish video: %w", closeErr)
	}
	if err != nil {
		os.Remove(silent)
		res.Err = err
		return res
	}

	if p.opts.MuxAudio {
		if err := p.muxer.Mux(ctx, silent, input, out); err != nil {
			res.MuxError = err
			log.WithError(err).Warn("Saved video without audio")
		} else {
			res.Muxed = true
		}
	} else if err := video.Keep(silent, out); err != nil {
		res.Err = err
		return res
	}

	log.WithFields(logrus.Fields{
		"frames":  res.Written,
		"skipped": res.Skipped,
	}).Infof("Saved %s", out)
	return res
}

// Run processes files in order. One file failing does not stop the others,
// except when no video encoder is available at all.
func (p *Pipeline) Run(ctx context.Context, files []string) ([]Result, error) {
	results := make([]Result, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := p.Process(ctx, f)
		results = append(results, res)
		if res.Err == nil {
			continue
		}

		p.log.WithField("file", filepath.Base(f)).WithError(res.Err).Error("Failed")
		var eu *video.EncoderUnavailableError
		if errors.As(res.Err, &eu) {
			return results, res.Err
		}
	}
	return results, nil
}

// RunDir processes every matching file in dir. An empty directory is not an
// error.
func (p *Pipeline) RunDir(ctx context.Context, dir string, exts []string) ([]Result, error) {
	files, err := Discover(dir, exts)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.log.Warnf("No audio files found in %s, nothing to do", dir)
		return nil, nil
	}
	p.log.Infof("Found %d audio files in %s", len(files), dir)
	return p.Run(ctx, files)
}
