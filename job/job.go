// Package job stores plot jobs: the encoder configuration together with
// the instruction stream it produced, so that a plot can be resumed,
// replayed or inspected later without the source image.
package job

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"penplot.org/gcode"
	"penplot.org/optimize"
	"penplot.org/toolpath"
)

// Version of the job encoding.
const Version = 1

type Job struct {
	Name   string
	Extent toolpath.Extent
	Config toolpath.Config
	// Mode is the compression applied to Stream.
	Mode   optimize.Mode
	Stream gcode.Stream
}

var ErrVersion = errors.New("job: unsupported version")

type wireJob struct {
	_       struct{} `cbor:",toarray"`
	Version int
	Name    string
	Extent  [2]float64
	Config  toolpath.Config
	Mode    optimize.Mode
	Stream  []wireInstruction
}

type wireInstruction struct {
	_     struct{} `cbor:",toarray"`
	Op    gcode.Op
	Pen   gcode.Pen
	Z     gcode.Coord
	X, Y  gcode.Coord
	Feed  gcode.Coord
	Rapid bool
	Text  string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Save writes j to w as zstd compressed CBOR.
func Save(w io.Writer, j *Job) error {
	wj := wireJob{
		Version: Version,
		Name:    j.Name,
		Extent:  [2]float64{j.Extent.Width, j.Extent.Height},
		Config:  j.Config,
		Mode:    j.Mode,
		Stream:  make([]wireInstruction, len(j.Stream)),
	}
	for i, in := range j.Stream {
		wj.Stream[i] = wireInstruction{
			Op:    in.Op,
			Pen:   in.Pen,
			Z:     in.Z,
			X:     in.X,
			Y:     in.Y,
			Feed:  in.Feed,
			Rapid: in.Rapid,
			Text:  in.Text,
		}
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if err := encMode.NewEncoder(zw).Encode(wj); err != nil {
		zw.Close()
		return fmt.Errorf("job: failed to encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	return nil
}

// Load reads a job written by Save.
func Load(r io.Reader) (*Job, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}
	defer zr.Close()
	var wj wireJob
	if err := decMode.NewDecoder(zr).Decode(&wj); err != nil {
		return nil, fmt.Errorf("job: failed to decode: %w", err)
	}
	if wj.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, wj.Version)
	}
	j := &Job{
		Name:   wj.Name,
		Extent: toolpath.Extent{Width: wj.Extent[0], Height: wj.Extent[1]},
		Config: wj.Config,
		Mode:   wj.Mode,
	}
	if len(wj.Stream) > 0 {
		j.Stream = make(gcode.Stream, len(wj.Stream))
	}
	for i, in := range wj.Stream {
		if in.Op > gcode.OpRaw || in.Pen > gcode.Down {
			return nil, fmt.Errorf("job: %w: instruction %d has op %v, pen %v", gcode.ErrMalformedStream, i, in.Op, in.Pen)
		}
		j.Stream[i] = gcode.Instruction{
			Op:    in.Op,
			Pen:   in.Pen,
			Z:     in.Z,
			X:     in.X,
			Y:     in.Y,
			Feed:  in.Feed,
			Rapid: in.Rapid,
			Text:  in.Text,
		}
	}
	return j, nil
}
