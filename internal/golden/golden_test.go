package golden

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"penplot.org/gcode"
)

func TestCompareStream(t *testing.T) {
	m := gcode.DefaultMachine
	s := gcode.Stream{
		gcode.ExtentComment(3, 3),
		gcode.MoveTo(0, 0, 0),
		m.SetPen(gcode.Down, 0),
		gcode.MoveTo(200, 100, 0),
		m.SetPen(gcode.Up, 0),
	}
	dir := t.TempDir()
	for _, name := range []string{"stream.gcode", "stream.gcode.gz"} {
		p := filepath.Join(dir, name)
		if err := CompareStream(p, true, "", m, s); err != nil {
			t.Fatalf("%s: update: %v", name, err)
		}
		if err := CompareStream(p, false, dir, m, s); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		other := append(s.Clone(), gcode.MoveTo(0, 0, 0))
		if err := CompareStream(p, false, dir, m, other); err == nil {
			t.Errorf("%s: longer stream matched", name)
		}
		if _, err := os.Stat(filepath.Join(dir, "stream.gcode.orig.svg")); err != nil {
			t.Errorf("%s: golden stream not dumped: %v", name, err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "stream.gcode.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "EXTENT") {
		t.Error("golden file is not compressed")
	}
}
