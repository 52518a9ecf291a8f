package preview

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"penplot.org/bitmap"
	"penplot.org/gcode"
	"penplot.org/toolpath"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func at(x, y int) gcode.Instruction {
	return gcode.MoveTo(gcode.Coord(x)*gcode.Unit, gcode.Coord(y)*gcode.Unit, 0)
}

func TestAxisAligned(t *testing.T) {
	m := gcode.DefaultMachine
	s := gcode.Stream{
		m.SetPen(gcode.Down, 0),
		at(0, 0),
		// Diagonal.
		at(4, 4),
		// Horizontal.
		at(9, 4),
	}
	tests := []struct {
		axis     bool
		diagonal color.NRGBA
	}{
		{false, red},
		{true, white},
	}
	for _, test := range tests {
		img, err := Render(s, Options{Canvas: image.Pt(10, 10), AxisAligned: test.axis})
		if err != nil {
			t.Fatal(err)
		}
		if got := img.NRGBAAt(2, 2); got != test.diagonal {
			t.Errorf("axis aligned %v: diagonal pixel %v, want %v", test.axis, got, test.diagonal)
		}
		for x := 4; x <= 9; x++ {
			if got := img.NRGBAAt(x, 4); got != red {
				t.Errorf("axis aligned %v: horizontal pixel (%d,4) is %v, want %v", test.axis, x, got, red)
			}
		}
		if got := img.NRGBAAt(5, 8); got != white {
			t.Errorf("axis aligned %v: undrawn pixel is %v", test.axis, got)
		}
	}
}

func TestRenderEncoded(t *testing.T) {
	b := bitmap.Parse(
		"#.",
		".#",
	)
	s, err := toolpath.Encode(b, toolpath.Extent{Width: 2, Height: 2}, toolpath.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	img, err := Render(s, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, 2, 2); got != want {
		t.Fatalf("canvas %v, want %v", got, want)
	}
	// The only stroke runs from (1,0) into the marked cell at (1,1).
	if got := render(img); got != ".#\n.#\n" {
		t.Errorf("got\n%s", got)
	}
}

func TestStroke(t *testing.T) {
	m := gcode.DefaultMachine
	s := gcode.Stream{
		gcode.ExtentComment(2, 2),
		at(1, 0),
		m.SetPen(gcode.Down, 0),
		at(1, 1),
	}
	img, err := Render(s, Options{Scale: 10, StrokeWidth: 2, Color: color.Black})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, 20, 20); got != want {
		t.Fatalf("canvas %v, want %v", got, want)
	}
	if got := img.NRGBAAt(10, 5); got == white {
		t.Error("pixel on the stroke is blank")
	}
	if got := img.NRGBAAt(2, 15); got != white {
		t.Errorf("pixel away from the stroke is %v", got)
	}
}

func TestRenderClipped(t *testing.T) {
	m := gcode.DefaultMachine
	pt := func(x, y float64) gcode.Instruction {
		return gcode.MoveTo(gcode.Round(x), gcode.Round(y), 0)
	}
	tests := []struct {
		name string
		from gcode.Instruction
		to   gcode.Instruction
		want string
	}{
		{
			"horizontal", pt(0, 5), pt(1e11, 5),
			"..........\n..........\n..........\n..........\n..........\n" +
				"##########\n..........\n..........\n..........\n..........\n",
		},
		{
			"diagonal", pt(-1e9, -1e9), pt(1e9, 1e9),
			"#.........\n.#........\n..#.......\n...#......\n....#.....\n" +
				".....#....\n......#...\n.......#..\n........#.\n.........#\n",
		},
		{
			"outside", pt(2e11, 2e11), pt(3e11, -4e11),
			strings.Repeat("..........\n", 10),
		},
	}
	for _, test := range tests {
		s := gcode.Stream{test.from, m.SetPen(gcode.Down, 0), test.to}
		start := time.Now()
		img, err := Render(s, Options{Canvas: image.Pt(10, 10)})
		if err != nil {
			t.Fatal(err)
		}
		if d := time.Since(start); d > time.Second {
			t.Errorf("%s: rendering took %v", test.name, d)
		}
		if got := render(img); got != test.want {
			t.Errorf("%s: got\n%swant\n%s", test.name, got, test.want)
		}
	}
	s := gcode.Stream{pt(0, 5), m.SetPen(gcode.Down, 0), pt(1e11, 5)}
	img, err := Render(s, Options{Canvas: image.Pt(10, 10), StrokeWidth: 2})
	if err != nil {
		t.Fatal(err)
	}
	for x := 0; x < 10; x++ {
		if got := img.NRGBAAt(x, 5); got == white {
			t.Errorf("stroke: pixel (%d,5) is blank", x)
		}
	}
	if got := img.NRGBAAt(5, 8); got != white {
		t.Errorf("stroke: pixel away from the stroke is %v", got)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		s    gcode.Stream
		opts Options
		err  error
	}{
		{"no extent", gcode.Stream{at(1, 1)}, Options{}, gcode.ErrMalformedStream},
		{"bad extent", gcode.Stream{gcode.Comment("EXTENT:10"), at(1, 1)}, Options{}, gcode.ErrMalformedStream},
		{"zero extent", gcode.Stream{gcode.Comment("EXTENT:0x10")}, Options{}, gcode.ErrMalformedStream},
		{"negative canvas", nil, Options{Canvas: image.Pt(-1, 4)}, gcode.ErrInvalidGeometry},
		{"negative scale", gcode.Stream{gcode.ExtentComment(2, 2)}, Options{Scale: -1}, gcode.ErrInvalidGeometry},
	}
	for _, test := range tests {
		_, err := Render(test.s, test.opts)
		if !errors.Is(err, test.err) {
			t.Errorf("%s: got error %v, want %v", test.name, err, test.err)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	img, err := Render(nil, Options{Canvas: image.Pt(3, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if got := render(img); got != "...\n...\n" {
		t.Errorf("got\n%s", got)
	}
}

func render(img *image.NRGBA) string {
	var b strings.Builder
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.NRGBAAt(x, y) == white {
				b.WriteByte('.')
			} else {
				b.WriteByte('#')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
