package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the firmware link speed.
const DefaultBaudRate = 115200

// readTimeout bounds each blocking read so Close is noticed promptly.
const readTimeout = 100 * time.Millisecond

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// OpenSerial opens a serial port at 8N1 and starts framing it.
func OpenSerial(name string, baud int, terminator byte, maxFrame int) (*Stream, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	return NewStream(port, terminator, maxFrame), nil
}
