// package marlin streams G-code programs to plotters running Marlin
// compatible firmware.
package marlin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"penplot.org/gcode"
)

type Options struct {
	// Checksum numbers every line and appends a checksum, allowing the
	// firmware to request resends of lines that arrive corrupted.
	Checksum bool
	// End is sent after the program completes, for example to park
	// the pen.
	End gcode.Stream
	// Retries bounds the number of consecutive resends of a line. Zero
	// means a default.
	Retries int
}

var ErrCancelled = errors.New("cancelled")

const (
	defaultRetries = 5
	// quickStop aborts motion immediately.
	quickStop = "M410"
)

// Lines returns the command lines of s in the form sent to the
// firmware: comments are stripped and line numbers are not yet
// assigned.
func Lines(s gcode.Stream) []string {
	var lines []string
	for _, in := range s {
		if l := in.Command(); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Frame prefixes line with its number and appends the checksum of the
// result.
func Frame(num int, line string) string {
	l := fmt.Sprintf("N%d %s", num, line)
	return fmt.Sprintf("%s*%d", l, Checksum(l))
}

// Checksum is the XOR of the bytes of line.
func Checksum(line string) byte {
	var cs byte
	for i := 0; i < len(line); i++ {
		cs ^= line[i]
	}
	return cs
}

// Send streams s to dev one line at a time, waiting for the firmware
// to acknowledge each line before sending the next. Progress in the
// range [0,1] is reported on progress without blocking. Closing quit
// stops the machine and makes Send return ErrCancelled.
func Send(dev io.ReadWriter, opts Options, s gcode.Stream, progress chan<- float32, quit <-chan struct{}) error {
	var mu sync.Mutex
	wr := func(line string) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := io.WriteString(dev, line+"\n")
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-quit:
			wr(quickStop)
		case <-done:
		}
	}()
	retries := opts.Retries
	if retries == 0 {
		retries = defaultRetries
	}
	bufr := bufio.NewReader(dev)
	// await reads replies up to and including the acknowledgement of
	// the last line. It returns the line number the firmware asks to
	// be resent, if any.
	await := func() (int, error) {
		resend := 0
		var ferr error
		for {
			reply, err := bufr.ReadString('\n')
			if err != nil {
				return 0, fmt.Errorf("marlin: %w", err)
			}
			reply = strings.TrimSpace(reply)
			switch {
			case strings.HasPrefix(reply, "ok"):
				if ferr != nil && resend == 0 {
					return 0, ferr
				}
				return resend, nil
			case strings.HasPrefix(reply, "Resend:"), strings.HasPrefix(reply, "rs "):
				f := strings.Fields(strings.TrimPrefix(strings.TrimPrefix(reply, "Resend:"), "rs "))
				if len(f) == 0 {
					return 0, fmt.Errorf("marlin: invalid reply %q", reply)
				}
				n, err := strconv.Atoi(strings.TrimPrefix(f[0], "N"))
				if err != nil {
					return 0, fmt.Errorf("marlin: invalid reply %q", reply)
				}
				resend = n
			case strings.HasPrefix(reply, "Error:"), strings.HasPrefix(reply, "!!"):
				if ferr == nil {
					ferr = fmt.Errorf("marlin: firmware error: %s", reply)
				}
			}
			// Ignore echo:, busy: and other chatter.
		}
	}

	lines := append(Lines(s), Lines(opts.End)...)
	if opts.Checksum {
		if err := wr("M110 N0"); err != nil {
			return err
		}
		if _, err := await(); err != nil {
			return err
		}
	}
	attempts := 0
	for i := 0; i < len(lines); {
		select {
		case <-quit:
			return ErrCancelled
		default:
		}
		num := i + 1
		line := lines[i]
		if opts.Checksum {
			line = Frame(num, line)
		}
		if err := wr(line); err != nil {
			return fmt.Errorf("marlin: %w", err)
		}
		resend, err := await()
		if err != nil {
			return err
		}
		if resend != 0 {
			if !opts.Checksum || resend < 1 || resend > num {
				return fmt.Errorf("marlin: unexpected resend request for line %d after line %d", resend, num)
			}
			attempts++
			if attempts > retries {
				return fmt.Errorf("marlin: line %d rejected %d times", resend, attempts)
			}
			i = resend - 1
			continue
		}
		attempts = 0
		i++
		select {
		case progress <- float32(i) / float32(len(lines)):
		default:
		}
	}
	return nil
}
