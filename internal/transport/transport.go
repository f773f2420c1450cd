// Package transport frames the serial byte stream on a terminator byte.
// The stream implementation runs its own reader and writer goroutines so the
// polling loop never blocks on I/O. The fake implementation allows testing
// without a port.
package transport

import "errors"

// DefaultMaxFrame is the largest payload accepted in one frame.
const DefaultMaxFrame = 100

var (
	// ErrFrameOverflow is reported for a frame longer than the maximum
	// payload. The oversized bytes are discarded up to the next terminator.
	ErrFrameOverflow = errors.New("frame overflow")

	// ErrTxQueueFull is returned when the outbound queue cannot take another frame.
	ErrTxQueueFull = errors.New("transmit queue full")

	// ErrClosed is returned when writing to a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Frame is one terminator-delimited message. Data excludes the terminator.
// If Err is set, Data is nil and the frame must be answered as an error.
type Frame struct {
	Data []byte
	Err  error
}

// Transport reads and writes frames.
type Transport interface {
	// ReadFrame returns the next complete frame if one is available.
	// It never blocks.
	ReadFrame() (Frame, bool)

	// WriteFrame queues payload followed by the terminator for transmission.
	WriteFrame(payload []byte) error

	// Close releases the underlying link.
	Close() error
}
