// Package gcode models the instruction streams sent to a pen plotter and
// implements their G-code text encoding.
package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidGeometry reports non-positive bitmap, extent or canvas
	// dimensions.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrMalformedStream reports unparseable tokens or missing metadata.
	ErrMalformedStream = errors.New("malformed stream")
	// ErrUnsupportedPolicy reports a scan, timing or compression
	// policy that is not implemented.
	ErrUnsupportedPolicy = errors.New("unsupported policy")
)

// Coord is a fixed-point number in hundredths of a unit. Coordinates,
// pen heights and feed rates are all stored with this precision so that
// two values that print the same compare equal.
type Coord int64

// Unit is the Coord for 1.00.
const Unit Coord = 100

// MaxValue is the largest magnitude, in units, that ParseCoord accepts.
const MaxValue = 1e12

// Round converts v to the nearest Coord.
func Round(v float64) Coord {
	return Coord(math.Round(v * float64(Unit)))
}

// ParseCoord parses a decimal number and rounds it to a Coord.
func ParseCoord(s string) (Coord, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	// Reject values that don't fit in hundredths.
	if math.IsNaN(v) || math.Abs(v) > MaxValue {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return Round(v), nil
}

func (c Coord) Float() float64 {
	return float64(c) / float64(Unit)
}

// String formats c with exactly two decimals.
func (c Coord) String() string {
	v := int64(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/int64(Unit), v%int64(Unit))
}

type Pen uint8

const (
	Up Pen = iota
	Down
)

func (p Pen) String() string {
	switch p {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return fmt.Sprintf("Pen(%d)", uint8(p))
}

// Op tags an Instruction.
type Op uint8

const (
	// OpComment is a whole-line comment, carried verbatim.
	OpComment Op = iota
	// OpSetPen raises or lowers the pen.
	OpSetPen
	// OpMoveTo moves to a coordinate, drawing when the pen is down.
	OpMoveTo
	// OpRaw is any other command line, carried verbatim.
	OpRaw
)

func (o Op) String() string {
	switch o {
	case OpComment:
		return "comment"
	case OpSetPen:
		return "setpen"
	case OpMoveTo:
		return "moveto"
	case OpRaw:
		return "raw"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Instruction is a single step of a Stream. Which fields are meaningful
// depends on Op.
type Instruction struct {
	Op Op
	// Pen and Z are the state and tool height of an OpSetPen.
	Pen Pen
	Z   Coord
	// X and Y are the target of an OpMoveTo.
	X, Y Coord
	// Feed is the feed rate of an OpSetPen or OpMoveTo. Zero
	// means no feed rate is written.
	Feed Coord
	// Rapid selects G0 instead of G1.
	Rapid bool
	// Text is the comment of an OpComment, the verbatim line of an
	// OpRaw and the trailing comment of any other instruction.
	Text string
}

func Comment(text string) Instruction {
	return Instruction{Op: OpComment, Text: text}
}

func SetPen(p Pen, z, feed Coord) Instruction {
	return Instruction{Op: OpSetPen, Pen: p, Z: z, Feed: feed}
}

func MoveTo(x, y, feed Coord) Instruction {
	return Instruction{Op: OpMoveTo, X: x, Y: y, Feed: feed}
}

func Raw(line string) Instruction {
	return Instruction{Op: OpRaw, Text: line}
}

// Command returns the instruction as a G-code line without its
// trailing comment. Comments return the empty string.
func (in Instruction) Command() string {
	switch in.Op {
	case OpSetPen, OpMoveTo:
		var b strings.Builder
		if in.Rapid {
			b.WriteString("G0")
		} else {
			b.WriteString("G1")
		}
		if in.Op == OpMoveTo {
			fmt.Fprintf(&b, " X%s Y%s", in.X, in.Y)
		} else {
			fmt.Fprintf(&b, " Z%s", in.Z)
		}
		if in.Feed != 0 {
			fmt.Fprintf(&b, " F%s", in.Feed)
		}
		return b.String()
	case OpRaw:
		return Tokenize(in.Text).Code()
	}
	return ""
}

// String returns the instruction as a G-code line.
func (in Instruction) String() string {
	switch in.Op {
	case OpComment:
		return ";" + in.Text
	case OpRaw:
		return in.Text
	}
	line := in.Command()
	if in.Text != "" {
		line += " ;" + in.Text
	}
	return line
}

// Machine is the Z convention of a plotter: PenDown is the height that
// lowers the pen, any other height raises it.
type Machine struct {
	PenDown Coord
	PenUp   Coord
}

// DefaultMachine lowers the pen at Z0 and raises it to Z2.5.
var DefaultMachine = Machine{
	PenDown: 0,
	PenUp:   250,
}

// Pen returns the pen state a tool height selects.
func (m Machine) Pen(z Coord) Pen {
	if z == m.PenDown {
		return Down
	}
	return Up
}

// SetPen returns the instruction that moves the pen to state p.
func (m Machine) SetPen(p Pen, feed Coord) Instruction {
	z := m.PenUp
	if p == Down {
		z = m.PenDown
	}
	return SetPen(p, z, feed)
}

// Stream is an ordered instruction history.
type Stream []Instruction

// Clone returns a copy of s.
func (s Stream) Clone() Stream {
	if s == nil {
		return nil
	}
	return append(Stream(nil), s...)
}

// String returns the G-code text of s, one instruction per line.
func (s Stream) String() string {
	var b strings.Builder
	for _, in := range s {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Write writes the G-code text of s to w.
func Write(w io.Writer, s Stream) error {
	bw := bufio.NewWriter(w)
	for _, in := range s {
		bw.WriteString(in.String())
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Count returns the number of instructions in s with operation op.
func (s Stream) Count(op Op) int {
	n := 0
	for _, in := range s {
		if in.Op == op {
			n++
		}
	}
	return n
}
