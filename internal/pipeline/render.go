package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/musicviz/internal/spectrum"
	"github.com/satindergrewal/musicviz/internal/video"
)

// renderFrames renders frames [0, total) on up to Workers goroutines and
// writes them to sink strictly in index order. A frame that fails to write
// is skipped; MaxWriteErrors failures in a row abort the file.
func (p *Pipeline) renderFrames(ctx context.Context, log logrus.FieldLogger, spec *spectrum.Spectrogram, total int, sink video.FrameSink, bar *frameProgress) (written, skipped int, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each slot carries one frame. The channel's capacity bounds how far
	// rendering can run ahead of the sink.
	slots := make(chan chan *image.RGBA, p.opts.Workers)
	go func() {
		defer close(slots)
		for i := 0; i < total; i++ {
			slot := make(chan *image.RGBA, 1)
			select {
			case slots <- slot:
			case <-ctx.Done():
				return
			}
			go func(frame int) {
				slot <- p.renderer.Render(spec, frame)
			}(i)
		}
	}()

	frame, failedInRow := 0, 0
	for slot := range slots {
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}
		var img *image.RGBA
		select {
		case img = <-slot:
		case <-ctx.Done():
			return written, skipped, ctx.Err()
		}

		if werr := sink.WriteFrame(img); werr != nil {
			skipped++
			failedInRow++
			log.WithField("frame", frame).WithError(werr).Warn("Skipping frame")
			if failedInRow >= p.opts.MaxWriteErrors {
				return written, skipped, fmt.Errorf("giving up after %d failed frames in a row: %w", failedInRow, werr)
			}
		} else {
			written++
			failedInRow = 0
		}

		if frame%100 == 0 {
			log.Debugf("Frame %d/%d", frame, total)
		}
		bar.Increment()
		frame++
	}

	if frame < total {
		return written, skipped, ctx.Err()
	}
	return written, skipped, nil
}
