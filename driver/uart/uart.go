// Package uart implements the p530.UART port over a real serial
// device using github.com/tarm/serial.
package uart

import (
	"errors"
	"runtime"
	"time"

	"github.com/tarm/serial"
)

const (
	baudRate = 115200
	wordLen  = 8
	stopBits = 1

	// readTimeout bounds how long a single Read blocks waiting for the
	// first byte. Without it, github.com/tarm/serial configures the
	// port with VMIN=1/VTIME=0, a genuinely blocking read — fatal for
	// a port that must be polled cooperatively and never block (see
	// link.Link.Poll / p530.Engine.Tick).
	readTimeout = 5 * time.Millisecond
)

// Port is a p530.UART backed by an open serial device. It also
// satisfies link.Port directly.
type Port struct {
	dev     *serial.Port
	pending []byte
}

// Open opens dev, or if dev is empty, the first default device for
// the host OS that opens successfully.
func Open(dev string) (*Port, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3", "COM4")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyAMA0", "/dev/serial0")
		default:
			devices = append(devices, "/dev/tty.usbserial")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("uart: no device specified")
	}
	var firstErr error
	for _, d := range devices {
		cfg := &serial.Config{Name: d, Baud: baudRate, Size: wordLen, StopBits: stopBits, ReadTimeout: readTimeout}
		s, err := serial.OpenPort(cfg)
		if err == nil {
			return &Port{dev: s}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Available reports how many bytes have already arrived from the
// device. github.com/tarm/serial has no peek API, so Port reads
// eagerly in small bursts and buffers the result; Available reports
// on that buffer. The port's readTimeout keeps the underlying Read
// from blocking past a few milliseconds when nothing has arrived yet,
// so Available returns (0, nil) promptly instead of stalling the
// caller's tick loop.
func (p *Port) Available() (int, error) {
	if len(p.pending) > 0 {
		return len(p.pending), nil
	}
	var buf [64]byte
	n, err := p.dev.Read(buf[:])
	if err != nil {
		return 0, err
	}
	p.pending = append(p.pending, buf[:n]...)
	return len(p.pending), nil
}

// ReadByte returns the next buffered byte, calling Available first if
// necessary to prime the buffer.
func (p *Port) ReadByte() (byte, error) {
	if len(p.pending) == 0 {
		if _, err := p.Available(); err != nil {
			return 0, err
		}
	}
	if len(p.pending) == 0 {
		return 0, errNoData
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	return b, nil
}

// WriteArray writes data to the device in one call.
func (p *Port) WriteArray(data []byte) error {
	_, err := p.dev.Write(data)
	return err
}

// Close closes the underlying device.
func (p *Port) Close() error {
	return p.dev.Close()
}

var errNoData = errors.New("uart: no data available")
