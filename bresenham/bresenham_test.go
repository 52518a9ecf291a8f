package bresenham

import (
	"image"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStep(t *testing.T) {
	lengths := []image.Point{
		image.Pt(0, 0),
		image.Pt(0, 1),
		image.Pt(1, 0),
		image.Pt(1, 1),
		image.Pt(1, 100),
		image.Pt(100, 1),
		image.Pt(100, 0),
		image.Pt(1000, 50),
		image.Pt(20, 50),
	}
	quadrants := []image.Point{
		image.Pt(1, 1),
		image.Pt(-1, 1),
		image.Pt(1, -1),
		image.Pt(-1, -1),
	}
	l := new(Line)
	for _, q := range quadrants {
		for _, n := range lengths {
			dist := image.Pt(n.X*q.X, n.Y*q.Y)
			steps := l.Reset(dist)
			if want := max(n.X, n.Y); steps != want {
				t.Errorf("%v: %d steps, want %d", dist, steps, want)
			}
			p := image.Pt(0, 0)
			for range steps {
				d := l.Step()
				if d.X < -1 || d.X > 1 || d.Y < -1 || d.Y > 1 || d == (image.Point{}) {
					t.Fatalf("%v: invalid step %v", dist, d)
				}
				p = p.Add(d)
			}
			if p != dist {
				t.Errorf("stepped to %v, want %v", p, dist)
			}
		}
	}
}

func TestWalk(t *testing.T) {
	tests := []struct {
		p0, p1 image.Point
		want   []image.Point
	}{
		{image.Pt(2, 3), image.Pt(2, 3), []image.Point{{2, 3}}},
		{image.Pt(0, 0), image.Pt(3, 0), []image.Point{{0, 0}, {1, 0}, {2, 0}, {3, 0}}},
		{image.Pt(1, 2), image.Pt(1, 0), []image.Point{{1, 2}, {1, 1}, {1, 0}}},
		{image.Pt(0, 0), image.Pt(-2, 2), []image.Point{{0, 0}, {-1, 1}, {-2, 2}}},
		{image.Pt(0, 0), image.Pt(4, 2), []image.Point{{0, 0}, {1, 0}, {2, 1}, {3, 1}, {4, 2}}},
	}
	for _, test := range tests {
		got := slices.Collect(Walk(test.p0, test.p1))
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Walk(%v, %v) mismatch (-want +got):\n%s", test.p0, test.p1, diff)
		}
	}
}
