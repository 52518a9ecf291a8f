package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Block is a tokenized G-code line.
type Block struct {
	// Word is the upper case command word such as G1 or M5. It is
	// empty for blank and comment-only lines.
	Word string
	// Args are the tokens following Word, verbatim.
	Args []string
	// Number is the value of a leading N word, or -1.
	Number int
	// Comment is the text following the first ';'.
	Comment    string
	HasComment bool
}

// Param is a letter and number pair such as X12.50.
type Param struct {
	Letter byte
	Value  Coord
}

// Tokenize splits a line into its command word, arguments and comment.
// A leading line number and a trailing checksum are removed. Tokenize
// doesn't interpret arguments; see Block.Params.
func Tokenize(line string) Block {
	b := Block{Number: -1}
	code, comment, found := strings.Cut(line, ";")
	if found {
		b.Comment = comment
		b.HasComment = true
	}
	code, _, _ = strings.Cut(code, "*")
	fields := strings.Fields(code)
	if len(fields) > 0 && len(fields[0]) > 1 && (fields[0][0] == 'N' || fields[0][0] == 'n') {
		if n, err := strconv.Atoi(fields[0][1:]); err == nil && n >= 0 {
			b.Number = n
			fields = fields[1:]
		}
	}
	if len(fields) == 0 {
		return b
	}
	b.Word = strings.ToUpper(fields[0])
	b.Args = fields[1:]
	return b
}

// Code returns the command word and arguments without line number,
// checksum or comment.
func (b Block) Code() string {
	if b.Word == "" {
		return ""
	}
	return strings.Join(append([]string{b.Word}, b.Args...), " ")
}

// IsMotion reports whether the block is a linear move, G0 or G1.
func (b Block) IsMotion() bool {
	switch b.Word {
	case "G0", "G00", "G1", "G01":
		return true
	}
	return false
}

// Params parses every argument as a letter followed by a number.
func (b Block) Params() ([]Param, error) {
	params := make([]Param, 0, len(b.Args))
	for _, a := range b.Args {
		l := a[0]
		if 'a' <= l && l <= 'z' {
			l -= 'a' - 'A'
		}
		if l < 'A' || 'Z' < l {
			return nil, fmt.Errorf("invalid token %q", a)
		}
		v, err := ParseCoord(a[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid token %q", a)
		}
		params = append(params, Param{Letter: l, Value: v})
	}
	return params, nil
}

// Parser converts G-code lines to instructions. It remembers the last
// position so that moves naming a single axis keep the other.
type Parser struct {
	m    Machine
	pos  Point
	line int
}

func NewParser(m Machine) *Parser {
	return &Parser{m: m}
}

// ParseLine appends the instructions of a single line to s. Motion
// lines with both a Z and a coordinate result in a SetPen followed by a
// MoveTo. Motion lines with neither, and all other command words, are
// kept verbatim as Raw instructions. Blank lines are skipped.
func (p *Parser) ParseLine(s Stream, line string) (Stream, error) {
	p.line++
	line = strings.TrimSpace(line)
	if line == "" {
		return s, nil
	}
	if line[0] == ';' {
		return append(s, Comment(line[1:])), nil
	}
	b := Tokenize(line)
	if b.Word == "" {
		// A line number or checksum without a command.
		return append(s, Raw(line)), nil
	}
	if !b.IsMotion() {
		return append(s, Raw(line)), nil
	}
	params, err := b.Params()
	if err != nil {
		return s, fmt.Errorf("gcode: line %d: %w: %v", p.line, ErrMalformedStream, err)
	}
	var (
		z, feed    Coord
		hasZ, move bool
	)
	to := p.pos
	for _, prm := range params {
		switch prm.Letter {
		case 'X':
			to.X = prm.Value
			move = true
		case 'Y':
			to.Y = prm.Value
			move = true
		case 'Z':
			z = prm.Value
			hasZ = true
		case 'F':
			feed = prm.Value
		}
	}
	if !hasZ && !move {
		return append(s, Raw(line)), nil
	}
	rapid := b.Word == "G0" || b.Word == "G00"
	if hasZ {
		in := SetPen(p.m.Pen(z), z, feed)
		in.Rapid = rapid
		s = append(s, in)
	}
	if move {
		in := MoveTo(to.X, to.Y, feed)
		in.Rapid = rapid
		s = append(s, in)
		p.pos = to
	}
	if b.HasComment {
		s[len(s)-1].Text = b.Comment
	}
	return s, nil
}

// Parse reads a G-code program. Unknown commands are kept as Raw
// instructions; unparseable motion arguments result in an error
// wrapping ErrMalformedStream.
func Parse(r io.Reader, m Machine) (Stream, error) {
	p := NewParser(m)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var s Stream
	for sc.Scan() {
		var err error
		s, err = p.ParseLine(s, sc.Text())
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("gcode: line %d: %w: %v", p.line+1, ErrMalformedStream, err)
		}
		return nil, fmt.Errorf("gcode: %w", err)
	}
	return s, nil
}
