// Package source turns images and text into bitmaps for plotting.
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/kortschak/qr"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"penplot.org/bitmap"
	"penplot.org/gcode"
)

type Options struct {
	// MaxSize bounds the width and height of the image in pixels.
	// Larger images are shrunk, preserving the aspect ratio. Zero
	// disables resizing.
	MaxSize int
	// Contrast is the contrast factor applied before thresholding,
	// where 1 leaves the image unchanged.
	Contrast float64
	// Threshold is the gray level below which pixels are marked.
	Threshold uint8
	// Crop trims blank margins off the bitmap.
	Crop bool
	// Boundary keeps only the right hand edges of marked runs.
	Boundary bool
}

func DefaultOptions() Options {
	return Options{
		MaxSize:   1000,
		Contrast:  1,
		Threshold: 128,
	}
}

// Decode reads a PNG, JPEG, GIF, BMP, TIFF, WebP or SVG image.
func Decode(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(512)
	if isSVG(head) {
		return DecodeSVG(br)
	}
	img, err := imaging.Decode(br, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return img, nil
}

func isSVG(head []byte) bool {
	head = bytes.TrimSpace(head)
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

// DecodeSVG rasterizes an SVG document at the size of its view box,
// on a white background.
func DecodeSVG(r io.Reader) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, fmt.Errorf("source: svg: %w", err)
	}
	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("source: svg: %w: %dx%d view box", gcode.ErrInvalidGeometry, w, h)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	img := imaging.New(w, h, color.White)
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	scanner.SetClip(img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}

// Prepare flattens img onto white, shrinks it to fit opts.MaxSize and
// converts it to grayscale with the contrast adjusted.
func Prepare(img image.Image, opts Options) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1)
	if opts.MaxSize > 0 {
		out = imaging.Fit(out, opts.MaxSize, opts.MaxSize, imaging.Lanczos)
	}
	out = imaging.Grayscale(out)
	if opts.Contrast > 0 && opts.Contrast != 1 {
		out = imaging.AdjustContrast(out, (opts.Contrast-1)*100)
	}
	return out
}

// Threshold marks the pixels of img darker than level.
func Threshold(img image.Image, level uint8) *bitmap.Bits {
	r := img.Bounds()
	bm := bitmap.New(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			bm.Set(x-r.Min.X, y-r.Min.Y, g.Y < level)
		}
	}
	return bm
}

// Bitmap converts img to a bitmap according to opts.
func Bitmap(img image.Image, opts Options) (bitmap.Bitmap, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("source: %w: empty image", gcode.ErrInvalidGeometry)
	}
	var bm bitmap.Bitmap = Threshold(Prepare(img, opts), opts.Threshold)
	if opts.Boundary {
		bm = bitmap.Boundary(bm)
	}
	if opts.Crop {
		r := bitmap.Crop(bm)
		if r.Empty() {
			return nil, fmt.Errorf("source: %w: nothing to plot", gcode.ErrInvalidGeometry)
		}
		bm = bitmap.Sub(bm, r)
	}
	return bm, nil
}

// Levels maps error correction level names to QR levels.
var Levels = map[string]qr.Level{
	"L": qr.L,
	"M": qr.M,
	"Q": qr.Q,
	"H": qr.H,
}

// QR encodes text as a QR code, with each module scale cells wide and a
// quiet zone of border modules.
func QR(text string, level qr.Level, scale, border int) (*bitmap.Bits, error) {
	if scale <= 0 || border < 0 {
		return nil, fmt.Errorf("source: %w: qr scale %d, border %d", gcode.ErrInvalidGeometry, scale, border)
	}
	code, err := qr.Encode(text, level)
	if err != nil {
		return nil, fmt.Errorf("source: qr: %w", err)
	}
	dim := (code.Size + 2*border) * scale
	bm := bitmap.New(dim, dim)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			mx, my := x/scale-border, y/scale-border
			bm.Set(x, y, code.Black(mx, my))
		}
	}
	return bm, nil
}
