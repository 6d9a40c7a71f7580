// Package visual maps band magnitudes to circles and rasterizes them.
//
// Frames are returned as *image.RGBA (R, G, B, A byte order). Any other
// channel order an encoder needs is produced by the encoder, never here.
package visual

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/satindergrewal/musicviz/internal/spectrum"
)

const (
	baseRadius = 20.0
	radiusGain = 30.0
	wobble     = 100.0
	phaseStep  = 0.1 // radians per video frame
)

// Sync selects which spectrogram column feeds a video frame.
type Sync string

const (
	// SyncIndex reads column i for video frame i.
	SyncIndex Sync = "index"
	// SyncTime reads the column covering the frame's timestamp.
	SyncTime Sync = "time"
)

// ParseSync parses a sync mode name. The empty string means SyncIndex.
func ParseSync(s string) (Sync, error) {
	switch Sync(s) {
	case "", SyncIndex:
		return SyncIndex, nil
	case SyncTime:
		return SyncTime, nil
	}
	return "", fmt.Errorf("unknown sync mode %q", s)
}

// Circle is one band's drawing parameters.
type Circle struct {
	X, Y   float64
	Radius float64
	Color  color.RGBA
}

// Renderer draws frames of a fixed size. A Renderer holds no per-frame state
// and may be used from several goroutines at once.
type Renderer struct {
	Width, Height int
	Bands         int
	Background    color.RGBA
	Sync          Sync
	FPS           float64
}

// NewRenderer returns a renderer with a black background and index sync.
func NewRenderer(width, height, bands int) *Renderer {
	if bands <= 0 {
		bands = spectrum.DefaultBands
	}
	return &Renderer{
		Width:      width,
		Height:     height,
		Bands:      bands,
		Background: color.RGBA{A: 0xff},
		Sync:       SyncIndex,
	}
}

func (r *Renderer) column(s *spectrum.Spectrogram, frame int) int {
	if r.Sync == SyncTime {
		return s.ColumnAt(frame, r.FPS)
	}
	return frame
}

// Circles computes the circles for frame, in band order.
func (r *Renderer) Circles(s *spectrum.Spectrogram, frame int) []Circle {
	n := spectrum.Normalize(s.Bands(r.column(s, frame), r.Bands))
	phase := math.Sin(float64(frame) * phaseStep)

	w, h := float64(r.Width), float64(r.Height)
	out := make([]Circle, len(n))
	for i, v := range n {
		out[i] = Circle{
			X:      w * float64(i+1) / float64(len(n)+1),
			Y:      h/2 + v*wobble*phase,
			Radius: baseRadius + v*radiusGain,
			Color:  bandColor(v),
		}
	}
	return out
}

// Render rasterizes frame into a new image. Out of range frames render the
// silence frame. A non-positive size yields an empty image at the origin.
func (r *Renderer) Render(s *spectrum.Spectrogram, frame int) *image.RGBA {
	if r.Width <= 0 || r.Height <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)

	z := vector.NewRasterizer(r.Width, r.Height)
	for _, c := range r.Circles(s, frame) {
		z.Reset(r.Width, r.Height)
		addCircle(z, c.X, c.Y, c.Radius)
		z.Draw(img, img.Bounds(), image.NewUniform(c.Color), image.Point{})
	}
	return img
}

func bandColor(n float64) color.RGBA {
	return color.RGBA{
		R: channel(255 * n),
		G: channel(100 + 155*n),
		B: channel(200 * (1 - n)),
		A: 0xff,
	}
}

func channel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// kappa places cubic control points so four segments approximate a circle.
const kappa = 0.5522847498

func addCircle(z *vector.Rasterizer, cx, cy, r float64) {
	k := r * kappa
	p := func(x, y float64) (float32, float32) { return float32(cx + x), float32(cy + y) }

	z.MoveTo(p(r, 0))
	cubeTo(z, p, r, k, k, r, 0, r)
	cubeTo(z, p, -k, r, -r, k, -r, 0)
	cubeTo(z, p, -r, -k, -k, -r, 0, -r)
	cubeTo(z, p, k, -r, r, -k, r, 0)
	z.ClosePath()
}

func cubeTo(z *vector.Rasterizer, p func(x, y float64) (float32, float32), bx, by, cx, cy, dx, dy float64) {
	x1, y1 := p(bx, by)
	x2, y2 := p(cx, cy)
	x3, y3 := p(dx, dy)
	z.CubeTo(x1, y1, x2, y2, x3, y3)
}
