package toolpath

import (
	"fmt"

	"penplot.org/gcode"
)

// Warning is a conformance finding. Index is the offending instruction,
// or -1 when the finding concerns the stream as a whole.
type Warning struct {
	Index int
	Msg   string
}

func (w Warning) String() string {
	if w.Index < 0 {
		return w.Msg
	}
	return fmt.Sprintf("instruction %d: %s", w.Index, w.Msg)
}

// Lint checks that s looks like the output of Encode: a preamble that
// starts with a comment, records the extent and raises the pen before
// the first move, and a terminating comment with the pen raised.
// Consumers such as the previewer tolerate every finding.
func Lint(s gcode.Stream) []Warning {
	if len(s) == 0 {
		return []Warning{{Index: -1, Msg: "empty stream"}}
	}
	var warns []Warning
	warn := func(idx int, format string, args ...any) {
		warns = append(warns, Warning{Index: idx, Msg: fmt.Sprintf(format, args...)})
	}
	if s[0].Op != gcode.OpComment {
		warn(0, "stream does not begin with a preamble comment")
	}
	if _, err := s.Extent(); err != nil {
		warn(-1, "missing %s metadata", gcode.ExtentKey)
	}
	for i, in := range s {
		if in.Op == gcode.OpSetPen {
			if in.Pen != gcode.Up {
				warn(i, "preamble lowers the pen")
			}
			break
		}
		if in.Op == gcode.OpMoveTo {
			warn(i, "move before the pen state is set")
			break
		}
	}
	if s.Count(gcode.OpSetPen) == 0 {
		warn(-1, "no pen transitions")
	}
	last := len(s) - 1
	if s[last].Op != gcode.OpComment {
		warn(last, "missing terminating comment")
	}
	for i := last; i >= 0; i-- {
		if s[i].Op == gcode.OpSetPen {
			if s[i].Pen == gcode.Down {
				warn(i, "stream ends with the pen down")
			}
			break
		}
	}
	return warns
}
