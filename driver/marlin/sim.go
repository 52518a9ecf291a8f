package marlin

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"penplot.org/gcode"
)

// Simulator is an in-memory plotter that speaks the firmware side of
// the line protocol.
type Simulator struct {
	// Corrupt lists line numbers whose first transmission is treated
	// as corrupted.
	Corrupt map[int]bool
	// Program is the accepted instructions.
	Program gcode.Stream
	// Stopped is set when a quick stop is received.
	Stopped bool
	// Resends counts resend requests.
	Resends int

	mu      sync.Mutex
	parser  *gcode.Parser
	partial []byte
	out     bytes.Buffer
	last    int
}

func NewSimulator(m gcode.Machine) *Simulator {
	return &Simulator{
		Corrupt: make(map[int]bool),
		parser:  gcode.NewParser(m),
	}
}

func (s *Simulator) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = append(s.partial, data...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i == -1 {
			break
		}
		line := string(s.partial[:i])
		s.partial = s.partial[i+1:]
		s.line(strings.TrimSpace(line))
	}
	return len(data), nil
}

// Read returns pending replies. It fails with an error rather than
// block if there are none.
func (s *Simulator) Read(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out.Len() == 0 {
		return 0, fmt.Errorf("simulator: read with no pending reply")
	}
	return s.out.Read(data)
}

func (s *Simulator) reply(format string, args ...any) {
	fmt.Fprintf(&s.out, format+"\n", args...)
}

func (s *Simulator) resend(format string, args ...any) {
	s.Resends++
	s.reply("Error:"+format, args...)
	s.reply("Resend: %d", s.last+1)
	s.reply("ok")
}

func (s *Simulator) line(line string) {
	if line == "" {
		return
	}
	b := gcode.Tokenize(line)
	if b.Word == quickStop {
		s.Stopped = true
		return
	}
	if b.Number >= 0 {
		cmd, sum, ok := cutLast(line, "*")
		if !ok {
			s.resend("No Checksum with line number, Last Line: %d", s.last)
			return
		}
		want, err := strconv.Atoi(strings.TrimSpace(sum))
		if err != nil || byte(want) != Checksum(cmd) || want > 0xff || s.Corrupt[b.Number] {
			delete(s.Corrupt, b.Number)
			s.resend("checksum mismatch, Last Line: %d", s.last)
			return
		}
		if b.Number != s.last+1 {
			s.resend("Line Number is not Last Line Number+1, Last Line: %d", s.last)
			return
		}
		s.last = b.Number
	}
	if b.Word == "M110" {
		for _, a := range b.Args {
			if n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(a), "N")); err == nil {
				s.last = n
			}
		}
		s.reply("ok")
		return
	}
	prog, err := s.parser.ParseLine(s.Program, b.Code())
	if err != nil {
		s.reply("Error:%v", err)
		s.reply("ok")
		return
	}
	s.Program = prog
	s.reply("ok")
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
