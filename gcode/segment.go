package gcode

import (
	"fmt"
	"image"
	"iter"
	"math"
	"strconv"
	"strings"
)

type Point struct {
	X, Y Coord
}

func Pt(x, y Coord) Point {
	return Point{X: x, Y: y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%s,%s)", p.X, p.Y)
}

// Segment is a straight stroke drawn with the pen down.
type Segment struct {
	From, To Point
}

// AxisAligned reports whether the segment is horizontal or vertical.
func (s Segment) AxisAligned() bool {
	return s.From.X == s.To.X || s.From.Y == s.To.Y
}

// Segments iterates over the drawn segments of s in order: every MoveTo
// evaluated with the pen down, starting at the previous MoveTo. The pen
// starts up. Zero length moves draw nothing and are skipped.
func (s Stream) Segments() iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		pen := Up
		var last Point
		started := false
		for _, in := range s {
			switch in.Op {
			case OpSetPen:
				pen = in.Pen
			case OpMoveTo:
				p := Pt(in.X, in.Y)
				if started && pen == Down && p != last {
					if !yield(Segment{From: last, To: p}) {
						return
					}
				}
				last = p
				started = true
			}
		}
	}
}

// ExtentKey prefixes the comment that records the drawing extent of a
// stream, such as ";EXTENT:210x297".
const ExtentKey = "EXTENT:"

// ExtentComment returns the metadata comment for an extent of w by h
// units.
func ExtentComment(w, h int) Instruction {
	return Comment(fmt.Sprintf("%s%dx%d", ExtentKey, w, h))
}

// Extent returns the extent recorded by the metadata comment in the
// leading part of s, before the first SetPen or MoveTo.
func (s Stream) Extent() (image.Point, error) {
	for _, in := range s {
		switch in.Op {
		case OpSetPen, OpMoveTo:
			return image.Point{}, fmt.Errorf("gcode: %w: no %s comment", ErrMalformedStream, strings.TrimSuffix(ExtentKey, ":"))
		case OpComment:
			txt, ok := strings.CutPrefix(strings.TrimSpace(in.Text), ExtentKey)
			if !ok {
				continue
			}
			ext, err := parseExtent(txt)
			if err != nil {
				return image.Point{}, fmt.Errorf("gcode: %w: %v", ErrMalformedStream, err)
			}
			return ext, nil
		}
	}
	return image.Point{}, fmt.Errorf("gcode: %w: no %s comment", ErrMalformedStream, strings.TrimSuffix(ExtentKey, ":"))
}

func parseExtent(s string) (image.Point, error) {
	ws, hs, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("extent %q is not of the form <width>x<height>", s)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return image.Point{}, fmt.Errorf("extent %q is not of the form <width>x<height>", s)
	}
	return image.Pt(w, h), nil
}

// CeilUnits rounds a physical dimension up to whole units, for use with
// ExtentComment.
func CeilUnits(v float64) int {
	return int(math.Ceil(v - 1e-9))
}
