package toolpath

import (
	"errors"
	"flag"
	"image"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"penplot.org/bitmap"
	"penplot.org/gcode"
	"penplot.org/internal/golden"
)

var (
	update = flag.Bool("update", false, "update golden files")
	dump   = flag.String("dump", "", "dump SVG files to directory")
)

// diagonal is marked at (0,0) and (1,1).
var diagonal = bitmap.Parse(
	"#.",
	".#",
)

func TestEncodeDiagonal(t *testing.T) {
	cfg := DefaultConfig()
	s, err := Encode(diagonal, Extent{2, 2}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, f := cfg.Machine, cfg.Feeds
	want := gcode.Stream{
		// Row 0, left to right.
		m.SetPen(gcode.Down, f.Pen),
		gcode.MoveTo(0, 0, f.Draw),
		m.SetPen(gcode.Up, f.Pen),
		gcode.MoveTo(100, 0, f.Travel),
		// Row 1, right to left.
		m.SetPen(gcode.Down, f.Pen),
		gcode.MoveTo(100, 100, f.Draw),
		m.SetPen(gcode.Up, f.Pen),
		gcode.MoveTo(0, 100, f.Travel),
		gcode.Comment(EndComment),
	}
	body := s[len(preamble(Extent{2, 2}, cfg)):]
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("stream mismatch (-want +got):\n%s", diff)
	}
	p := filepath.Join("testdata", "diagonal.gcode.gz")
	if err := golden.CompareStream(p, *update, *dump, cfg.Machine, s); err != nil {
		t.Error(err)
	}
}

func TestEncodeAfterMove(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timing = TransitionAfterMove
	s, err := Encode(diagonal, Extent{2, 2}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, f := cfg.Machine, cfg.Feeds
	want := gcode.Stream{
		gcode.MoveTo(0, 0, f.Travel),
		m.SetPen(gcode.Down, f.Pen),
		gcode.MoveTo(100, 0, f.Draw),
		m.SetPen(gcode.Up, f.Pen),
		gcode.MoveTo(100, 100, f.Travel),
		m.SetPen(gcode.Down, f.Pen),
		gcode.MoveTo(0, 100, f.Draw),
		m.SetPen(gcode.Up, f.Pen),
		gcode.Comment(EndComment),
	}
	body := s[len(preamble(Extent{2, 2}, cfg)):]
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("stream mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodePreamble(t *testing.T) {
	s, err := Encode(diagonal, Extent{210, 297}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	firstMove := -1
	for i, in := range s {
		if in.Op == gcode.OpMoveTo {
			firstMove = i
			break
		}
	}
	if firstMove < 4 {
		t.Fatalf("first move at %d, before the end of the preamble", firstMove)
	}
	ext, err := s.Extent()
	if err != nil {
		t.Fatal(err)
	}
	if want := image.Pt(210, 297); ext != want {
		t.Errorf("recorded extent %v, want %v", ext, want)
	}
	if w := Lint(s); len(w) > 0 {
		t.Errorf("encoded stream has lint warnings: %v", w)
	}
}

func TestEncodeBlankAndFull(t *testing.T) {
	blank := bitmap.New(7, 5)
	full := bitmap.New(7, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			full.Set(x, y, true)
		}
	}
	tests := []struct {
		name   string
		b      bitmap.Bitmap
		invert bool
		downs  int
	}{
		{"blank", blank, false, 0},
		{"full", full, false, 1},
		{"inverted blank", blank, true, 1},
		{"inverted full", full, true, 0},
	}
	for _, test := range tests {
		for _, timing := range []Timing{TransitionBeforeMove, TransitionAfterMove} {
			cfg := DefaultConfig()
			cfg.Invert = test.invert
			cfg.Timing = timing
			s, err := Encode(test.b, Extent{70, 50}, cfg)
			if err != nil {
				t.Fatal(err)
			}
			downs := 0
			for _, in := range s {
				if in.Op == gcode.OpSetPen && in.Pen == gcode.Down {
					downs++
				}
			}
			if downs != test.downs {
				t.Errorf("%s (%v): %d pen down transitions, want %d", test.name, timing, downs, test.downs)
			}
			if got, want := s.Count(gcode.OpMoveTo), 7*5; got != want {
				t.Errorf("%s (%v): %d moves, want %d", test.name, timing, got, want)
			}
			if w := Lint(s); len(w) > 0 {
				t.Errorf("%s (%v): lint warnings: %v", test.name, timing, w)
			}
		}
	}
}

func TestEncodeScale(t *testing.T) {
	b := bitmap.New(4, 2)
	cfg := DefaultConfig()
	cfg.OffsetX = 1.5
	s, err := Encode(b, Extent{10, 10}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var got []gcode.Point
	for _, in := range s {
		if in.Op == gcode.OpMoveTo {
			got = append(got, gcode.Pt(in.X, in.Y))
		}
	}
	// Scale is min(10/4, 10/2) = 2.5.
	want := []gcode.Point{
		{X: 150, Y: 0}, {X: 400, Y: 0}, {X: 650, Y: 0}, {X: 900, Y: 0},
		{X: 900, Y: 250}, {X: 650, Y: 250}, {X: 400, Y: 250}, {X: 150, Y: 250},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRowStep(t *testing.T) {
	b := bitmap.New(3, 5)
	for _, scan := range []Scan{Boustrophedon, Unidirectional} {
		cfg := DefaultConfig()
		cfg.RowStep = 2
		cfg.Scan = scan
		s, err := Encode(b, Extent{3, 5}, cfg)
		if err != nil {
			t.Fatal(err)
		}
		var xs, ys []gcode.Coord
		for _, in := range s {
			if in.Op == gcode.OpMoveTo {
				xs = append(xs, in.X/gcode.Unit)
				ys = append(ys, in.Y/gcode.Unit)
			}
		}
		wantY := []gcode.Coord{0, 0, 0, 2, 2, 2, 4, 4, 4}
		wantX := []gcode.Coord{0, 1, 2, 2, 1, 0, 0, 1, 2}
		if scan == Unidirectional {
			wantX = []gcode.Coord{0, 1, 2, 0, 1, 2, 0, 1, 2}
		}
		if diff := cmp.Diff(wantY, ys); diff != "" {
			t.Errorf("%v: rows mismatch (-want +got):\n%s", scan, diff)
		}
		if diff := cmp.Diff(wantX, xs); diff != "" {
			t.Errorf("%v: columns mismatch (-want +got):\n%s", scan, diff)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	b := randomBitmap(rand.New(rand.NewSource(44)), 31, 17)
	cfg := DefaultConfig()
	s1, err := Encode(b, Extent{100, 60}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := Encode(b, Extent{100, 60}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s1.String() != s2.String() {
		t.Error("encoding the same bitmap twice gave different streams")
	}
}

// TestEncodeStrokes checks that strokes end exactly at the cells that
// are drawn, when pen transitions precede moves.
func TestEncodeStrokes(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	for i := 0; i < 50; i++ {
		w, h := 1+rng.Intn(12), 1+rng.Intn(12)
		b := randomBitmap(rng, w, h)
		s, err := Encode(b, Extent{float64(w), float64(h)}, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		ends := make(map[gcode.Point]bool)
		for seg := range s.Segments() {
			x, y := int(seg.To.X/gcode.Unit), int(seg.To.Y/gcode.Unit)
			if !b.IsMarked(x, y) {
				t.Fatalf("bitmap\n%s: stroke %v ends in blank cell", b, seg)
			}
			ends[seg.To] = true
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if x == 0 && y == 0 {
					// The first cell has no stroke leading to it.
					continue
				}
				p := gcode.Pt(gcode.Coord(x)*gcode.Unit, gcode.Coord(y)*gcode.Unit)
				if b.IsMarked(x, y) && !ends[p] {
					t.Fatalf("bitmap\n%s: no stroke ends in marked cell (%d,%d)", b, x, y)
				}
			}
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name string
		b    bitmap.Bitmap
		ext  Extent
		cfg  func(c *Config)
		err  error
	}{
		{"empty bitmap", bitmap.New(0, 3), Extent{1, 1}, nil, gcode.ErrInvalidGeometry},
		{"zero width", diagonal, Extent{0, 1}, nil, gcode.ErrInvalidGeometry},
		{"negative height", diagonal, Extent{1, -1}, nil, gcode.ErrInvalidGeometry},
		{"NaN extent", diagonal, Extent{math.NaN(), 1}, nil, gcode.ErrInvalidGeometry},
		{"infinite extent", diagonal, Extent{inf, 1}, nil, gcode.ErrInvalidGeometry},
		{"huge extent", diagonal, Extent{1e20, 1e20}, nil, gcode.ErrInvalidGeometry},
		{"extent past limit", diagonal, Extent{1, gcode.MaxValue + 1e3}, nil, gcode.ErrInvalidGeometry},
		{"huge offset", diagonal, Extent{1, 1}, func(c *Config) { c.OffsetX = -gcode.MaxValue }, gcode.ErrInvalidGeometry},
		{"NaN offset", diagonal, Extent{1, 1}, func(c *Config) { c.OffsetY = math.NaN() }, gcode.ErrInvalidGeometry},
		{"scan", diagonal, Extent{1, 1}, func(c *Config) { c.Scan = 7 }, gcode.ErrUnsupportedPolicy},
		{"timing", diagonal, Extent{1, 1}, func(c *Config) { c.Timing = 7 }, gcode.ErrUnsupportedPolicy},
		{"row step", diagonal, Extent{1, 1}, func(c *Config) { c.RowStep = -2 }, gcode.ErrUnsupportedPolicy},
		{"pen heights", diagonal, Extent{1, 1}, func(c *Config) { c.Machine.PenUp = c.Machine.PenDown }, gcode.ErrUnsupportedPolicy},
	}
	for _, test := range tests {
		cfg := DefaultConfig()
		if test.cfg != nil {
			test.cfg(&cfg)
		}
		_, err := Encode(test.b, test.ext, cfg)
		if !errors.Is(err, test.err) {
			t.Errorf("%s: got error %v, want %v", test.name, err, test.err)
		}
	}
}

func TestLint(t *testing.T) {
	m := gcode.DefaultMachine
	s := gcode.Stream{
		gcode.MoveTo(0, 0, 0),
		m.SetPen(gcode.Down, 0),
		gcode.MoveTo(100, 0, 0),
	}
	var got []string
	for _, w := range Lint(s) {
		got = append(got, w.String())
	}
	want := []string{
		"instruction 0: stream does not begin with a preamble comment",
		"missing EXTENT: metadata",
		"instruction 0: move before the pen state is set",
		"instruction 2: missing terminating comment",
		"instruction 1: stream ends with the pen down",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lint mismatch (-want +got):\n%s", diff)
	}
	if w := Lint(nil); len(w) != 1 || !strings.Contains(w[0].Msg, "empty") {
		t.Errorf("Lint(nil) = %v", w)
	}
}

func randomBitmap(rng *rand.Rand, w, h int) *bitmap.Bits {
	b := bitmap.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.Set(x, y, rng.Intn(3) == 0)
		}
	}
	return b
}
