// Package toolpath encodes bitmaps into pen plotter instruction streams.
//
// The encoder visits every cell of the bitmap in a fixed scan order and
// emits a move for each of them, lowering the pen over cells that should
// be drawn and raising it over the rest. The scan order is deterministic;
// no attempt is made to shorten the path.
package toolpath

import (
	"fmt"
	"math"

	"penplot.org/bitmap"
	"penplot.org/gcode"
)

// Extent is the physical size of the drawing area.
type Extent struct {
	Width, Height float64
}

// Scan selects the order of cells within scan lines.
type Scan uint8

const (
	// Boustrophedon alternates direction every scan line: the first
	// line runs from low to high x, the next from high to low, and so
	// on. Counting is by visited scan lines, so with a RowStep of 2
	// rows 0, 4, 8, ... run forward and rows 2, 6, 10, ... run back.
	Boustrophedon Scan = iota
	// Unidirectional runs every scan line from low to high x.
	Unidirectional
)

func (s Scan) String() string {
	switch s {
	case Boustrophedon:
		return "boustrophedon"
	case Unidirectional:
		return "unidirectional"
	}
	return fmt.Sprintf("Scan(%d)", uint8(s))
}

// Timing selects where pen transitions are emitted relative to the move
// into the cell that needs them.
type Timing uint8

const (
	// TransitionBeforeMove switches the pen at the current position,
	// before moving into the cell. The pen state of a cell governs the
	// stroke that ends in it.
	TransitionBeforeMove Timing = iota
	// TransitionAfterMove moves into the cell before switching the
	// pen. The pen state of a cell governs the stroke that leaves it.
	TransitionAfterMove
)

func (t Timing) String() string {
	switch t {
	case TransitionBeforeMove:
		return "before"
	case TransitionAfterMove:
		return "after"
	}
	return fmt.Sprintf("Timing(%d)", uint8(t))
}

// Feeds are the feed rates, in units per minute.
type Feeds struct {
	// Draw is the feed rate of moves with the pen down.
	Draw gcode.Coord
	// Travel is the feed rate of moves with the pen up.
	Travel gcode.Coord
	// Pen is the feed rate of pen transitions.
	Pen gcode.Coord
}

type Config struct {
	// Flavor is recorded in the preamble for the benefit of
	// firmware and slicer tools.
	Flavor  string
	Machine gcode.Machine
	Feeds   Feeds
	// Invert draws blank cells instead of marked cells.
	Invert bool
	Scan   Scan
	// RowStep is the distance between scan lines, in rows. Zero
	// means 1.
	RowStep int
	Timing  Timing
	// OffsetX and OffsetY translate every move, in physical units.
	OffsetX, OffsetY float64
}

func DefaultConfig() Config {
	return Config{
		Flavor:  "Marlin",
		Machine: gcode.DefaultMachine,
		Feeds: Feeds{
			Draw:   gcode.Round(4500),
			Travel: gcode.Round(8000),
			Pen:    gcode.Round(12000),
		},
	}
}

// Scale returns the uniform scale that fits a w by h bitmap inside ext
// while preserving its aspect ratio.
func Scale(w, h int, ext Extent) float64 {
	return math.Min(ext.Width/float64(w), ext.Height/float64(h))
}

// Encode returns the instruction stream that draws b inside ext.
func Encode(b bitmap.Bitmap, ext Extent, cfg Config) (gcode.Stream, error) {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("toolpath: %w: %dx%d bitmap", gcode.ErrInvalidGeometry, w, h)
	}
	if !validDim(ext.Width) || !validDim(ext.Height) {
		return nil, fmt.Errorf("toolpath: %w: %gx%g extent", gcode.ErrInvalidGeometry, ext.Width, ext.Height)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !inRange(ext.Width, cfg.OffsetX) || !inRange(ext.Height, cfg.OffsetY) {
		return nil, fmt.Errorf("toolpath: %w: %gx%g extent offset by (%g,%g) exceeds %g",
			gcode.ErrInvalidGeometry, ext.Width, ext.Height, cfg.OffsetX, cfg.OffsetY, gcode.MaxValue)
	}
	step := max(cfg.RowStep, 1)
	scale := Scale(w, h, ext)

	s := preamble(ext, cfg)
	down := false
	pen := func(draw bool) {
		if draw == down {
			return
		}
		down = draw
		p := gcode.Up
		if draw {
			p = gcode.Down
		}
		s = append(s, cfg.Machine.SetPen(p, cfg.Feeds.Pen))
	}
	move := func(x, y int) {
		feed := cfg.Feeds.Travel
		if down {
			feed = cfg.Feeds.Draw
		}
		s = append(s, gcode.MoveTo(
			gcode.Round(float64(x)*scale+cfg.OffsetX),
			gcode.Round(float64(y)*scale+cfg.OffsetY),
			feed,
		))
	}
	line := 0
	for y := 0; y < h; y += step {
		// Swap direction every other line.
		rev := cfg.Scan == Boustrophedon && line%2 != 0
		line++
		for i := 0; i < w; i++ {
			x := i
			if rev {
				x = w - 1 - i
			}
			draw := b.IsMarked(x, y) != cfg.Invert
			switch cfg.Timing {
			case TransitionBeforeMove:
				pen(draw)
				move(x, y)
			case TransitionAfterMove:
				move(x, y)
				pen(draw)
			}
		}
	}
	pen(false)
	s = append(s, gcode.Comment(EndComment))
	return s, nil
}

// EndComment terminates every encoded stream.
const EndComment = " End of G-code"

func preamble(ext Extent, cfg Config) gcode.Stream {
	return gcode.Stream{
		gcode.Comment("FLAVOR:" + cfg.Flavor),
		gcode.ExtentComment(
			gcode.CeilUnits(ext.Width+max(cfg.OffsetX, 0)),
			gcode.CeilUnits(ext.Height+max(cfg.OffsetY, 0)),
		),
		gcode.Raw("G28 ; Home all axes"),
		cfg.Machine.SetPen(gcode.Up, cfg.Feeds.Pen),
	}
}

func validDim(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// inRange reports whether every coordinate of a dimension drawn at
// offset can be read back by gcode.ParseCoord.
func inRange(dim, offset float64) bool {
	return math.Abs(offset) <= gcode.MaxValue && dim+math.Abs(offset) <= gcode.MaxValue
}

func (c Config) validate() error {
	switch c.Scan {
	case Boustrophedon, Unidirectional:
	default:
		return fmt.Errorf("toolpath: %w: scan order %v", gcode.ErrUnsupportedPolicy, c.Scan)
	}
	switch c.Timing {
	case TransitionBeforeMove, TransitionAfterMove:
	default:
		return fmt.Errorf("toolpath: %w: transition timing %v", gcode.ErrUnsupportedPolicy, c.Timing)
	}
	if c.RowStep < 0 {
		return fmt.Errorf("toolpath: %w: row step %d", gcode.ErrUnsupportedPolicy, c.RowStep)
	}
	if c.Machine.PenDown == c.Machine.PenUp {
		return fmt.Errorf("toolpath: %w: pen up and down heights are both %v", gcode.ErrUnsupportedPolicy, c.Machine.PenUp)
	}
	return nil
}
