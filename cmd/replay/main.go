// command replay checks, previews and plots existing G-code programs
// and plot jobs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
	"penplot.org/driver/marlin"
	"penplot.org/gcode"
	"penplot.org/job"
	"penplot.org/optimize"
	"penplot.org/preview"
	"penplot.org/toolpath"
)

var (
	jobFile  = flag.Bool("job", false, "the input is a plot job instead of G-code")
	penDown  = flag.Float64("pendown", 0, "pen down height")
	penUp    = flag.Float64("penup", 2.5, "pen up height")
	lint     = flag.Bool("lint", true, "report deviations from the encoder output format")
	compress = flag.String("compress", optimize.None.String(), "compression: none, moves or window")
	output   = flag.String("o", "", "write the G-code to file, or - for stdout")

	previewFile = flag.String("preview", "", "write a PNG preview to file, or - for stdout")
	canvasW     = flag.Int("canvasw", 0, "preview width in pixels, instead of the recorded extent")
	canvasH     = flag.Int("canvash", 0, "preview height in pixels, instead of the recorded extent")
	pvScale     = flag.Float64("pvscale", 1, "preview pixels per unit")
	stroke      = flag.Float64("stroke", 0, "preview stroke width, 0 for single pixel lines")
	axis        = flag.Bool("axis", false, "preview only horizontal and vertical strokes")

	device   = flag.String("device", "", "send to the plotter on this serial device")
	baud     = flag.Int("baud", marlin.DefaultBaud, "serial baud rate")
	checksum = flag.Bool("checksum", true, "send line numbers and checksums")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("replay: ")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: replay [flags] <file.gcode | ->\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	m := gcode.Machine{
		PenDown: gcode.Round(*penDown),
		PenUp:   gcode.Round(*penUp),
	}
	mode, err := optimize.ParseMode(*compress)
	if err != nil {
		return err
	}
	var r io.Reader
	if path == "-" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("`-` should be used with a pipe for stdin")
		}
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	var s gcode.Stream
	if *jobFile {
		j, err := job.Load(r)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Printf("job %q: %gx%g, %v scan, %v compression", j.Name, j.Extent.Width, j.Extent.Height, j.Config.Scan, j.Mode)
		s, m = j.Stream, j.Config.Machine
	} else {
		s, err = gcode.Parse(r, m)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if *lint {
		for _, w := range toolpath.Lint(s) {
			log.Printf("%s: %v", path, w)
		}
	}
	c, err := optimize.Compress(s, mode)
	if err != nil {
		return err
	}
	if mode != optimize.None {
		log.Print(optimize.Measure(s, c))
	}
	if *output != "" {
		if err := writeFile(*output, false, func(w io.Writer) error {
			return gcode.Write(w, c)
		}); err != nil {
			return err
		}
	}
	if *previewFile != "" {
		img, err := preview.Render(c, preview.Options{
			Canvas:      image.Pt(*canvasW, *canvasH),
			Scale:       *pvScale,
			StrokeWidth: *stroke,
			AxisAligned: *axis,
		})
		if errors.Is(err, gcode.ErrMalformedStream) {
			return fmt.Errorf("%w (use -canvasw and -canvash)", err)
		}
		if err != nil {
			return err
		}
		if err := writeFile(*previewFile, true, func(w io.Writer) error {
			return png.Encode(w, img)
		}); err != nil {
			return err
		}
	}
	if *device != "" {
		return send(*device, m, c)
	}
	return nil
}

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
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- marlin.Send(port, marlin.Options{
			Checksum: *checksum,
			End:      gcode.Stream{m.SetPen(gcode.Up, 0)},
		}, s, nil, cancel)
	}()
	select {
	case <-quit:
		signal.Reset(os.Interrupt)
		close(cancel)
		return <-sendErr
	case err := <-sendErr:
		return err
	}
}
