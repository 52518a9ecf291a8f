package marlin

import (
	"errors"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// DefaultBaud is the factory baud rate of Marlin firmware.
const DefaultBaud = 115200

// Open the serial device dev, or the first available of the usual
// devices if dev is empty.
func Open(dev string, baud int) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3", "COM4")
		case "linux":
			devices = append(devices, "/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1")
		case "darwin":
			devices = append(devices, "/dev/cu.usbmodem1", "/dev/cu.usbserial")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("marlin: no device specified")
	}
	var firstErr error
	for _, dev := range devices {
		s, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baud})
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
