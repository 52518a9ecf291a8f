// Package optimize shrinks instruction streams.
package optimize

import (
	"fmt"

	"penplot.org/gcode"
)

// Mode selects a compression policy.
type Mode uint8

const (
	// None returns an unmodified copy.
	None Mode = iota
	// RedundantMoves drops moves to the position the machine is
	// already at and pen transitions to the height the pen is
	// already at. It preserves every drawn segment.
	RedundantMoves
	// TransitionWindow keeps only the pen transitions and the moves
	// immediately around them. Travel between windows is lost, and
	// with it the drawn segments of long pen down runs.
	TransitionWindow
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case RedundantMoves:
		return "moves"
	case TransitionWindow:
		return "window"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{None, RedundantMoves, TransitionWindow} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("optimize: %w: compression mode %q", gcode.ErrUnsupportedPolicy, s)
}

// Compress returns a compressed copy of s. The input is not modified.
func Compress(s gcode.Stream, mode Mode) (gcode.Stream, error) {
	switch mode {
	case None:
		return s.Clone(), nil
	case RedundantMoves:
		return dropRedundant(s), nil
	case TransitionWindow:
		return window(s), nil
	}
	return nil, fmt.Errorf("optimize: %w: %v", gcode.ErrUnsupportedPolicy, mode)
}

func dropRedundant(s gcode.Stream) gcode.Stream {
	var (
		out     gcode.Stream
		z       gcode.Coord
		pos     gcode.Point
		haveZ   bool
		havePos bool
	)
	last := len(s) - 1
	for i, in := range s {
		keep := i == 0 || i == last || in.Text != ""
		switch in.Op {
		case gcode.OpComment:
			keep = true
		case gcode.OpRaw:
			// Homing and friends move the machine behind our back.
			keep = true
			haveZ, havePos = false, false
		case gcode.OpSetPen:
			keep = keep || !haveZ || in.Z != z
			z, haveZ = in.Z, true
		case gcode.OpMoveTo:
			p := gcode.Pt(in.X, in.Y)
			keep = keep || !havePos || p != pos
			pos, havePos = p, true
		}
		if keep {
			out = append(out, in)
		}
	}
	return out
}

func window(s gcode.Stream) gcode.Stream {
	keep := make([]bool, len(s))
	lastMove := -1
	pending := false
	for i, in := range s {
		switch in.Op {
		case gcode.OpComment, gcode.OpRaw:
			keep[i] = true
		case gcode.OpSetPen:
			keep[i] = true
			if lastMove >= 0 {
				keep[lastMove] = true
			}
			pending = true
		case gcode.OpMoveTo:
			if pending {
				keep[i] = true
				pending = false
			}
			lastMove = i
		}
	}
	var out gcode.Stream
	for i, in := range s {
		if keep[i] {
			out = append(out, in)
		}
	}
	return out
}

// Stats summarizes a compression.
type Stats struct {
	In, Out int
}

func Measure(before, after gcode.Stream) Stats {
	return Stats{In: len(before), Out: len(after)}
}

// Ratio returns the fraction of instructions removed.
func (s Stats) Ratio() float64 {
	if s.In == 0 {
		return 0
	}
	return 1 - float64(s.Out)/float64(s.In)
}

func (s Stats) String() string {
	return fmt.Sprintf("%d -> %d instructions (%.1f%% removed)", s.In, s.Out, 100*s.Ratio())
}
