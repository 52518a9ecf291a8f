// Package preview renders the strokes of an instruction stream, for
// checking the output of the encoder and the optimizer by eye.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
	"penplot.org/bresenham"
	"penplot.org/gcode"
)

type Options struct {
	// Canvas is the raster size in pixels. If zero, the size is taken
	// from the extent metadata of the stream, multiplied by Scale.
	Canvas image.Point
	// Scale is the number of pixels per stream unit. Zero means 1.
	Scale float64
	// AxisAligned skips drawn segments that are neither horizontal
	// nor vertical.
	AxisAligned bool
	// StrokeWidth in pixels of anti-aliased strokes. Zero draws
	// single pixel lines without anti-aliasing.
	StrokeWidth float64
	// Color and Background default to red on white.
	Color      color.Color
	Background color.Color
}

// Render replays s and returns a raster of the drawn segments.
func Render(s gcode.Stream, opts Options) (*image.NRGBA, error) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("preview: %w: scale %g", gcode.ErrInvalidGeometry, scale)
	}
	size := opts.Canvas
	if size == (image.Point{}) {
		ext, err := s.Extent()
		if err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		size = image.Pt(
			int(math.Ceil(float64(ext.X)*scale)),
			int(math.Ceil(float64(ext.Y)*scale)),
		)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("preview: %w: %dx%d canvas", gcode.ErrInvalidGeometry, size.X, size.Y)
	}
	fg, bg := opts.Color, opts.Background
	if fg == nil {
		fg = color.NRGBA{R: 0xff, A: 0xff}
	}
	if bg == nil {
		bg = color.White
	}
	img := image.NewNRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	var p plotter
	if opts.StrokeWidth > 0 {
		p = newStroker(img, scale, opts.StrokeWidth, fg)
	} else {
		p = &pixels{img: img, scale: scale, c: color.NRGBAModel.Convert(fg).(color.NRGBA)}
	}
	for seg := range s.Segments() {
		if opts.AxisAligned && !seg.AxisAligned() {
			continue
		}
		p.Segment(seg)
	}
	p.Flush()
	return img, nil
}

type plotter interface {
	Segment(seg gcode.Segment)
	Flush()
}

type pixels struct {
	img   *image.NRGBA
	scale float64
	c     color.NRGBA
}

func (p *pixels) Segment(seg gcode.Segment) {
	p0, p1 := p.pixel(seg.From), p.pixel(seg.To)
	// Walk at most the part of the line that crosses the canvas,
	// widened by a pixel to keep the rounding of the end points off
	// the visible area.
	r := p.img.Rect
	f0 := [2]float64{float64(p0.X), float64(p0.Y)}
	f1 := [2]float64{float64(p1.X), float64(p1.Y)}
	t0, t1, ok := clip(f0, f1, float64(r.Min.X-1), float64(r.Min.Y-1), float64(r.Max.X), float64(r.Max.Y))
	if !ok {
		return
	}
	if t0 > 0 {
		p0 = roundAt(f0, f1, t0)
	}
	if t1 < 1 {
		p1 = roundAt(f0, f1, t1)
	}
	for q := range bresenham.Walk(p0, p1) {
		if q.In(r) {
			p.img.SetNRGBA(q.X, q.Y, p.c)
		}
	}
}

func (p *pixels) pixel(pt gcode.Point) image.Point {
	return image.Pt(
		int(math.Round(pt.X.Float()*p.scale)),
		int(math.Round(pt.Y.Float()*p.scale)),
	)
}

func (p *pixels) Flush() {}

// clip returns the parameter range [t0, t1] of the line from a to b that
// lies inside the rectangle spanned by (x0, y0) and (x1, y1), or false
// if the line misses it.
func clip(a, b [2]float64, x0, y0, x1, y1 float64) (t0, t1 float64, ok bool) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t0, t1 = 0, 1
	for _, e := range [...][2]float64{
		{-dx, a[0] - x0},
		{dx, x1 - a[0]},
		{-dy, a[1] - y0},
		{dy, y1 - a[1]},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, false
			}
			t1 = min(t1, r)
		}
	}
	return t0, t1, true
}

func lerp(a, b [2]float64, t float64) [2]float64 {
	return [2]float64{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

func roundAt(a, b [2]float64, t float64) image.Point {
	p := lerp(a, b, t)
	return image.Pt(int(math.Round(p[0])), int(math.Round(p[1])))
}

// stroker joins connected segments into rasterx paths.
type stroker struct {
	dasher  *rasterx.Dasher
	scale   float64
	// bounds is the canvas widened by the stroke width, in pixels.
	bounds  [4]float64
	last    gcode.Point
	started bool
	// joined reports whether the path ends at last.
	joined  bool
}

func newStroker(img draw.Image, scale, width float64, c color.Color) *stroker {
	b := img.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), img, b)
	d := rasterx.NewDasher(b.Dx(), b.Dy(), scanner)
	d.SetStroke(fixed.Int26_6(width*64), 0, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.ArcClip, nil, 0)
	d.SetColor(c)
	m := width + 1
	return &stroker{
		dasher: d,
		scale:  scale,
		bounds: [4]float64{float64(b.Min.X) - m, float64(b.Min.Y) - m, float64(b.Max.X) + m, float64(b.Max.Y) + m},
	}
}

func (s *stroker) point(p gcode.Point) [2]float64 {
	return [2]float64{p.X.Float() * s.scale, p.Y.Float() * s.scale}
}

func (s *stroker) Segment(seg gcode.Segment) {
	from, to := s.point(seg.From), s.point(seg.To)
	bb := s.bounds
	t0, t1, ok := clip(from, to, bb[0], bb[1], bb[2], bb[3])
	if !ok {
		return
	}
	if t0 > 0 || !s.joined || seg.From != s.last {
		if s.started {
			s.dasher.Stop(false)
		}
		s.dasher.Start(toFixed(lerp(from, to, t0)))
		s.started = true
	}
	s.dasher.Line(toFixed(lerp(from, to, t1)))
	s.last = seg.To
	s.joined = t1 == 1
}

func toFixed(p [2]float64) fixed.Point26_6 {
	return rasterx.ToFixedP(p[0], p[1])
}

func (s *stroker) Flush() {
	if s.started {
		s.dasher.Stop(false)
	}
	s.dasher.Draw()
}
