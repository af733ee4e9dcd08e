package seplos

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Baud rates per bus topology. A single pack (or slave polling) runs
// at 19200; a master/multi-pack bus runs at 9600.
const (
	BaudSinglePack = 19200
	BaudMultiPack  = 9600
)

// Transport is the byte-oriented half-duplex link shared by all packs.
// Implementations are not safe for concurrent use; the scheduler
// serializes access.
type Transport interface {
	Write(p []byte) error
	// ReadUntil reads until delim arrives or the timeout elapses,
	// returning whatever was read either way.
	ReadUntil(delim byte, timeout time.Duration) ([]byte, error)
	FlushInput() error
	FlushOutput() error
	Close() error
}

// SerialTransport drives a physical RS485 serial port.
type SerialTransport struct {
	port *serial.Port
}

// OpenSerial opens the serial device, e.g. "/dev/ttyUSB0".
func OpenSerial(device string, baud int) (*SerialTransport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return &SerialTransport{port: port}, nil
}

func (t *SerialTransport) Write(p []byte) error {
	n, err := t.port.Write(p)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("serial write: short write, %d of %d bytes", n, len(p))
	}
	return nil
}

// ReadUntil accumulates single bytes until the delimiter arrives. The
// port's own read timeout paces the loop; the deadline bounds the
// whole frame. A timeout is not an error: the validator rejects the
// partial frame and the poller retries.
func (t *SerialTransport) ReadUntil(delim byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 256)
	one := make([]byte, 1)
	for {
		n, err := t.port.Read(one)
		if n > 0 {
			buf = append(buf, one[0])
			if one[0] == delim {
				return buf, nil
			}
			continue
		}
		if err != nil && err != io.EOF {
			return buf, fmt.Errorf("serial read: %w", err)
		}
		if time.Now().After(deadline) {
			return buf, nil
		}
	}
}

// FlushInput drains any stale bytes left over from a previous exchange
// so they cannot be mistaken for the next response.
func (t *SerialTransport) FlushInput() error {
	scratch := make([]byte, 256)
	for {
		n, err := t.port.Read(scratch)
		if n == 0 || (err != nil && err != io.EOF) {
			return nil
		}
	}
}

func (t *SerialTransport) FlushOutput() error {
	return t.port.Flush()
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}
