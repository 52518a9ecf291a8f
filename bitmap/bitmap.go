// Package bitmap implements binary rasters for toolpath encoding.
package bitmap

import (
	"image"
	"strings"
)

// Bitmap is a read-only binary raster.
type Bitmap interface {
	Width() int
	Height() int
	// IsMarked reports whether the cell at (x, y) is marked. Cells
	// outside the bitmap are blank.
	IsMarked(x, y int) bool
}

// Bits is a bit-packed Bitmap.
type Bits struct {
	w, h int
	bits []uint64
}

func New(w, h int) *Bits {
	if w < 0 || h < 0 {
		panic("negative bitmap dimensions")
	}
	return &Bits{
		w:    w,
		h:    h,
		bits: make([]uint64, (w*h+63)/64),
	}
}

// Parse returns the bitmap drawn by rows of text, where '#' and 'X'
// are marked cells and everything else is blank. Short rows are padded
// with blank cells.
func Parse(rows ...string) *Bits {
	w := 0
	for _, r := range rows {
		w = max(w, len(r))
	}
	b := New(w, len(rows))
	for y, r := range rows {
		for x := 0; x < len(r); x++ {
			if r[x] == '#' || r[x] == 'X' {
				b.Set(x, y, true)
			}
		}
	}
	return b
}

func (b *Bits) Width() int  { return b.w }
func (b *Bits) Height() int { return b.h }

func (b *Bits) IsMarked(x, y int) bool {
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		return false
	}
	i := y*b.w + x
	return b.bits[i/64]&(1<<(i%64)) != 0
}

func (b *Bits) Set(x, y int, marked bool) {
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		panic("out of range")
	}
	i := y*b.w + x
	if marked {
		b.bits[i/64] |= 1 << (i % 64)
	} else {
		b.bits[i/64] &^= 1 << (i % 64)
	}
}

// String draws the bitmap in the format accepted by Parse.
func (b *Bits) String() string {
	return Format(b)
}

// Format draws a bitmap with '#' for marked and '.' for blank cells.
func Format(b Bitmap) string {
	var sb strings.Builder
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			if b.IsMarked(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Crop returns the bounds of the smallest rectangle that contains all
// marked cells. It returns the empty rectangle for a blank bitmap.
func Crop(b Bitmap) image.Rectangle {
	r := image.Rect(0, 0, b.Width(), b.Height())
	emptyCol := func(x int) bool {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			if b.IsMarked(x, y) {
				return false
			}
		}
		return true
	}
	emptyRow := func(y int) bool {
		for x := r.Min.X; x < r.Max.X; x++ {
			if b.IsMarked(x, y) {
				return false
			}
		}
		return true
	}
	// Crop top and bottom first, to narrow the column scans.
	for r.Min.Y < r.Max.Y && emptyRow(r.Min.Y) {
		r.Min.Y++
	}
	for r.Max.Y > r.Min.Y && emptyRow(r.Max.Y-1) {
		r.Max.Y--
	}
	if r.Empty() {
		return image.Rectangle{}
	}
	for r.Min.X < r.Max.X && emptyCol(r.Min.X) {
		r.Min.X++
	}
	for r.Max.X > r.Min.X && emptyCol(r.Max.X-1) {
		r.Max.X--
	}
	return r
}

// Sub returns the part of b inside r, translated to the origin.
func Sub(b Bitmap, r image.Rectangle) Bitmap {
	r = r.Intersect(image.Rect(0, 0, b.Width(), b.Height()))
	return subBitmap{b: b, r: r}
}

type subBitmap struct {
	b Bitmap
	r image.Rectangle
}

func (s subBitmap) Width() int  { return s.r.Dx() }
func (s subBitmap) Height() int { return s.r.Dy() }

func (s subBitmap) IsMarked(x, y int) bool {
	if x < 0 || y < 0 || x >= s.r.Dx() || y >= s.r.Dy() {
		return false
	}
	return s.b.IsMarked(s.r.Min.X+x, s.r.Min.Y+y)
}

// Boundary returns the cells of b where a marked cell is followed by a
// blank cell to its right. Plotting the boundary instead of the filled
// bitmap traces the right edge of every horizontal run.
func Boundary(b Bitmap) *Bits {
	w, h := b.Width(), b.Height()
	edges := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x+1 < w; x++ {
			if b.IsMarked(x, y) && !b.IsMarked(x+1, y) {
				edges.Set(x, y, true)
			}
		}
	}
	return edges
}
