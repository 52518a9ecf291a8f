// Package golden compares instruction streams with golden files.
package golden

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"penplot.org/gcode"
)

// CompareStream compares s with the golden G-code file at path. If
// update is set, the golden file is rewritten instead. Paths ending in
// ".gz" are gzip compressed. If dumpDir is not empty, an SVG of the drawn
// segments of s is written there, along with one of the golden stream
// on mismatch.
func CompareStream(path string, update bool, dumpDir string, m gcode.Machine, s gcode.Stream) error {
	bpath := strings.TrimSuffix(filepath.Base(path), ".gz")
	if dumpDir != "" {
		fpath := filepath.Join(dumpDir, bpath+".svg")
		if err := dumpSVG(fpath, s); err != nil {
			return err
		}
	}
	if update {
		buf := new(bytes.Buffer)
		var w io.Writer = buf
		var zw *gzip.Writer
		if strings.HasSuffix(path, ".gz") {
			var err error
			zw, err = gzip.NewWriterLevel(buf, gzip.BestCompression)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			w = zw
		}
		if err := gcode.Write(w, s); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if zw != nil {
			if err := zw.Close(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return os.WriteFile(path, buf.Bytes(), 0o640)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		r = zr
	}
	golden, err := gcode.Parse(r, m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	mismatches := 0
	first := -1
	for i := range min(len(s), len(golden)) {
		if s[i] != golden[i] {
			if first == -1 {
				first = i
			}
			mismatches++
		}
	}
	if mismatches > 0 || len(s) != len(golden) {
		if dumpDir != "" {
			fpath := filepath.Join(dumpDir, bpath+".orig.svg")
			if err := dumpSVG(fpath, golden); err != nil {
				return err
			}
		}
		if first >= 0 {
			return fmt.Errorf("%s: stream lengths %d, %d, with %d/%d instruction mismatches, first at %d: got %q, want %q",
				path, len(s), len(golden), mismatches, len(golden), first, s[first], golden[first])
		}
		return fmt.Errorf("%s: stream lengths %d, %d", path, len(s), len(golden))
	}
	return nil
}

// Vectorize writes the drawn segments of s as an SVG document. The view
// box is the stream extent if it records one, or the bounds of the
// segments otherwise.
func Vectorize(f io.Writer, s gcode.Stream) error {
	const (
		margin      = 1
		strokeWidth = 0.3
	)
	out := bufio.NewWriter(f)

	var minp, maxp gcode.Point
	first := true
	for seg := range s.Segments() {
		for _, p := range []gcode.Point{seg.From, seg.To} {
			if first {
				minp, maxp = p, p
				first = false
			}
			minp.X, minp.Y = min(minp.X, p.X), min(minp.Y, p.Y)
			maxp.X, maxp.Y = max(maxp.X, p.X), max(maxp.Y, p.Y)
		}
	}
	if ext, err := s.Extent(); err == nil {
		minp = gcode.Point{}
		maxp = gcode.Pt(gcode.Coord(ext.X)*gcode.Unit, gcode.Coord(ext.Y)*gcode.Unit)
	}
	w := (maxp.X - minp.X).Float() + 2*margin
	h := (maxp.Y - minp.Y).Float() + 2*margin
	fmt.Fprintf(out, "<svg xmlns=\"http://www.w3.org/2000/svg\" viewBox=\"%g %g %g %g\" width=\"%gmm\" height=\"%gmm\">\n",
		minp.X.Float()-margin, minp.Y.Float()-margin, w, h, w, h)
	fmt.Fprintf(out, `<defs><style>
		.stroke { fill: none; stroke: #f00; stroke-width: %g; stroke-linejoin: round; stroke-linecap: round; }
	</style></defs>`, strokeWidth)
	fmt.Fprint(out, `<path class="stroke" d="`)
	var last gcode.Point
	started := false
	for seg := range s.Segments() {
		if !started || seg.From != last {
			fmt.Fprintf(out, " M %s %s", seg.From.X, seg.From.Y)
			started = true
		}
		fmt.Fprintf(out, " L %s %s", seg.To.X, seg.To.Y)
		last = seg.To
	}
	fmt.Fprintln(out, `" />`)
	fmt.Fprintln(out, "</svg>")
	return out.Flush()
}

func dumpSVG(f string, s gcode.Stream) error {
	buf := new(bytes.Buffer)
	if err := Vectorize(buf, s); err != nil {
		return err
	}
	return os.WriteFile(f, buf.Bytes(), 0o640)
}
