// Package bresenham rasterizes straight lines with integer arithmetic.
package bresenham

import (
	"image"
	"iter"
)

// Line steps along a line one pixel at a time, always advancing the
// major axis and the minor axis when the accumulated error says so.
type Line struct {
	// err is the minor axis error, doubled.
	err int
	// major, minor are the absolute line lengths along each axis.
	major, minor int
	// steep is set when the major axis is y.
	steep bool
	// sx, sy are the directions of travel, -1 or 1.
	sx, sy int
}

// Reset prepares l for a line of the signed length dist and returns
// the number of steps needed to reach its end.
func (l *Line) Reset(dist image.Point) int {
	l.sx, l.sy = 1, 1
	if dist.X < 0 {
		l.sx = -1
		dist.X = -dist.X
	}
	if dist.Y < 0 {
		l.sy = -1
		dist.Y = -dist.Y
	}
	l.steep = dist.Y > dist.X
	if l.steep {
		dist.X, dist.Y = dist.Y, dist.X
	}
	l.major, l.minor = dist.X, dist.Y
	l.err = 2*l.minor - l.major
	return l.major
}

// Step returns the signed offset, -1, 0 or 1 on each axis, of the next
// pixel.
func (l *Line) Step() image.Point {
	carry := 0
	if l.err > 0 {
		carry = 1
		l.err -= 2 * l.major
	}
	l.err += 2 * l.minor
	d := image.Pt(1, carry)
	if l.steep {
		d.X, d.Y = d.Y, d.X
	}
	d.X *= l.sx
	d.Y *= l.sy
	return d
}

// Walk iterates over the pixels of the line from p0 to p1, both end
// points included.
func Walk(p0, p1 image.Point) iter.Seq[image.Point] {
	return func(yield func(image.Point) bool) {
		var l Line
		n := l.Reset(p1.Sub(p0))
		p := p0
		if !yield(p) {
			return
		}
		for range n {
			p = p.Add(l.Step())
			if !yield(p) {
				return
			}
		}
	}
}
