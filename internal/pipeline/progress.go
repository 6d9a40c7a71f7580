package pipeline

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// frameProgress is a per-file frame counter bar. A nil *frameProgress is a
// valid no-op.
type frameProgress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newFrameProgress(enabled bool, out io.Writer, name string, total int) *frameProgress {
	if !enabled || out == nil {
		return nil
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+" "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
	return &frameProgress{p: p, bar: bar}
}

func (f *frameProgress) Increment() {
	if f == nil {
		return
	}
	f.bar.Increment()
}

// Done finishes the bar. An unfinished bar is aborted so Wait returns.
func (f *frameProgress) Done(completed bool) {
	if f == nil {
		return
	}
	if !completed || !f.bar.Completed() {
		f.bar.Abort(false)
	}
	f.p.Wait()
}
