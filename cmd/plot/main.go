// command plot converts images and text to pen plotter G-code.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
	"penplot.org/bitmap"
	"penplot.org/driver/marlin"
	"penplot.org/gcode"
	"penplot.org/job"
	"penplot.org/optimize"
	"penplot.org/preview"
	"penplot.org/source"
	"penplot.org/toolpath"
)

var (
	input    = flag.String("in", "", "input image (PNG, JPEG, GIF, BMP, TIFF, WebP or SVG), or - for stdin")
	qrText   = flag.String("qr", "", "plot a QR code of the text instead of an image")
	qrLevel  = flag.String("qrlevel", "M", "QR error correction level: L, M, Q or H")
	qrScale  = flag.Int("qrscale", 4, "bitmap cells per QR module")
	qrBorder = flag.Int("qrborder", 4, "QR quiet zone in modules")
	output   = flag.String("o", "-", "output G-code file, or - for stdout")

	width   = flag.Float64("width", 1000, "drawing area width")
	height  = flag.Float64("height", 1000, "drawing area height")
	offsetX = flag.Float64("offsetx", 0, "horizontal offset of the drawing")
	offsetY = flag.Float64("offsety", 0, "vertical offset of the drawing")

	maxSize   = flag.Int("maxsize", 1000, "shrink images larger than this many pixels, 0 to disable")
	contrast  = flag.Float64("contrast", 1, "contrast factor")
	threshold = flag.Int("threshold", 128, "gray level below which pixels are drawn")
	crop      = flag.Bool("crop", false, "trim blank margins")
	boundary  = flag.Bool("boundary", false, "draw only the right hand edges of dark runs")

	invert   = flag.Bool("invert", false, "draw light pixels instead of dark")
	scan     = flag.String("scan", toolpath.Boustrophedon.String(), "scan order: boustrophedon or unidirectional")
	rowStep  = flag.Int("rowstep", 1, "distance between scan lines in pixels")
	timing   = flag.String("timing", toolpath.TransitionBeforeMove.String(), "pen transitions before or after the move")
	penDown  = flag.Float64("pendown", 0, "pen down height")
	penUp    = flag.Float64("penup", 2.5, "pen up height")
	compress = flag.String("compress", optimize.RedundantMoves.String(), "compression: none, moves or window")

	previewFile = flag.String("preview", "", "write a PNG preview to file, or - for stdout")
	pvScale     = flag.Float64("pvscale", 1, "preview pixels per unit")
	stroke      = flag.Float64("stroke", 0, "preview stroke width, 0 for single pixel lines")
	axis        = flag.Bool("axis", false, "preview only horizontal and vertical strokes")

	jobFile  = flag.String("job", "", "save the plot job to file")
	device   = flag.String("device", "", "send to the plotter on this serial device")
	baud     = flag.Int("baud", marlin.DefaultBaud, "serial baud rate")
	checksum = flag.Bool("checksum", true, "send line numbers and checksums")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config()
	if err != nil {
		return err
	}
	mode, err := optimize.ParseMode(*compress)
	if err != nil {
		return err
	}
	bm, name, err := load()
	if err != nil {
		return err
	}
	ext := toolpath.Extent{Width: *width, Height: *height}
	s, err := toolpath.Encode(bm, ext, cfg)
	if err != nil {
		return err
	}
	c, err := optimize.Compress(s, mode)
	if err != nil {
		return err
	}
	log.Printf("%dx%d bitmap, %v", bm.Width(), bm.Height(), optimize.Measure(s, c))
	if err := writeFile(*output, false, func(w io.Writer) error {
		return gcode.Write(w, c)
	}); err != nil {
		return err
	}
	if *previewFile != "" {
		img, err := preview.Render(c, preview.Options{
			Scale:       *pvScale,
			StrokeWidth: *stroke,
			AxisAligned: *axis,
		})
		if err != nil {
			return err
		}
		if err := writeFile(*previewFile, true, func(w io.Writer) error {
			return png.Encode(w, img)
		}); err != nil {
			return err
		}
	}
	if *jobFile != "" {
		j := &job.Job{
			Name:   name,
			Extent: ext,
			Config: cfg,
			Mode:   mode,
			Stream: c,
		}
		if err := writeFile(*jobFile, true, func(w io.Writer) error {
			return job.Save(w, j)
		}); err != nil {
			return err
		}
	}
	if *device != "" {
		return send(*device, cfg.Machine, c)
	}
	return nil
}

func config() (toolpath.Config, error) {
	cfg := toolpath.DefaultConfig()
	cfg.Invert = *invert
	cfg.RowStep = *rowStep
	cfg.OffsetX, cfg.OffsetY = *offsetX, *offsetY
	cfg.Machine = gcode.Machine{
		PenDown: gcode.Round(*penDown),
		PenUp:   gcode.Round(*penUp),
	}
	switch *scan {
	case toolpath.Boustrophedon.String():
		cfg.Scan = toolpath.Boustrophedon
	case toolpath.Unidirectional.String():
		cfg.Scan = toolpath.Unidirectional
	default:
		return cfg, fmt.Errorf("-scan must be %q or %q", toolpath.Boustrophedon, toolpath.Unidirectional)
	}
	switch *timing {
	case toolpath.TransitionBeforeMove.String():
		cfg.Timing = toolpath.TransitionBeforeMove
	case toolpath.TransitionAfterMove.String():
		cfg.Timing = toolpath.TransitionAfterMove
	default:
		return cfg, fmt.Errorf("-timing must be %q or %q", toolpath.TransitionBeforeMove, toolpath.TransitionAfterMove)
	}
	return cfg, nil
}

// load returns the bitmap to plot and a name for it.
func load() (bitmap.Bitmap, string, error) {
	if *qrText != "" {
		lvl, ok := source.Levels[strings.ToUpper(*qrLevel)]
		if !ok {
			return nil, "", fmt.Errorf("-qrlevel must be one of L, M, Q or H")
		}
		bm, err := source.QR(*qrText, lvl, *qrScale, *qrBorder)
		return bm, "qr", err
	}
	if *input == "" {
		return nil, "", errors.New("specify an image with -in or text with -qr")
	}
	if *threshold < 0 || *threshold > 255 {
		return nil, "", fmt.Errorf("-threshold must be between 0 and 255")
	}
	var (
		r    io.Reader
		name string
	)
	if *input == "-" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, "", errors.New("`-` should be used with a pipe for stdin")
		}
		r, name = bufio.NewReader(os.Stdin), "stdin"
	} else {
		f, err := os.Open(*input)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		r, name = f, strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	}
	img, err := source.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", *input, err)
	}
	opts := source.DefaultOptions()
	opts.MaxSize = *maxSize
	opts.Contrast = *contrast
	opts.Threshold = uint8(*threshold)
	opts.Crop = *crop
	opts.Boundary = *boundary
	bm, err := source.Bitmap(img, opts)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", *input, err)
	}
	if b := img.Bounds(); b.Size() != image.Pt(bm.Width(), bm.Height()) {
		log.Printf("%s: %dx%d image converted to a %dx%d bitmap", name, b.Dx(), b.Dy(), bm.Width(), bm.Height())
	}
	return bm, name, nil
}

// writeFile calls write with the named file, or standard output if
// name is "-". Binary output is refused if standard output is a
// terminal.
func writeFile(name string, binary bool, write func(w io.Writer) error) error {
	if name == "-" {
		if binary && term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("`-` should be used with a pipe for stdout")
		}
		return write(os.Stdout)
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	return f.Close()
}

func send(dev string, m gcode.Machine, s gcode.Stream) error {
	port, err := marlin.Open(dev, *baud)
	if err != nil {
		return err
	}
	defer port.Close()

	quit := make(chan os.Signal, 1)
	cancel := make(chan struct{})
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	progress := make(chan float32, 1)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- marlin.Send(port, marlin.Options{
			Checksum: *checksum,
			End:      gcode.Stream{m.SetPen(gcode.Up, 0), gcode.Raw("M84")},
		}, s, progress, cancel)
	}()
	last := -1
	for {
		select {
		case <-quit:
			signal.Reset(os.Interrupt)
			close(cancel)
			quit = nil
		case p := <-progress:
			if pct := int(p * 100); pct != last {
				last = pct
				fmt.Fprintf(os.Stderr, "\rplotting: %3d%%", pct)
			}
		case err := <-sendErr:
			fmt.Fprintln(os.Stderr)
			return err
		}
	}
}
