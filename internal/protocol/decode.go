// Package protocol decodes command frames received over the serial link,
// applies them to the pulse scheduler, and renders the acknowledgement.
package protocol

import (
	"errors"
	"fmt"
	"math"
)

// Header bytes. The first byte of every command frame selects the command.
const (
	HeaderRun    = 'R'
	HeaderStop   = 'S'
	HeaderPeriod = 'P'
)

// DefaultTerminator ends every frame on the link.
const DefaultTerminator = '\n'

// Field delimiter inside a frame.
const delimiter = ','

var (
	// ErrMalformedFrame covers unknown headers, a STOP with payload, and RUN
	// frames that do not carry exactly one value per channel.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrInvalidPeriod is returned for a zero or unparsable period.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrAllChannelsIdle reports that a command left every volume at zero.
	// It is a normal stop, not a failure.
	ErrAllChannelsIdle = errors.New("all channels idle")

	// ErrNoActivePulses is returned when every pulse would truncate to zero
	// for the requested volumes and period.
	ErrNoActivePulses = errors.New("no channel has a non-zero pulse")
)

// Kind identifies a decoded command.
type Kind int

const (
	KindUnknown Kind = iota
	KindRun
	KindStop
	KindPeriod
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "RUN"
	case KindStop:
		return "STOP"
	case KindPeriod:
		return "PERIOD"
	default:
		return "UNKNOWN"
	}
}

// Command is a decoded, typed command frame.
type Command struct {
	Kind    Kind
	Volumes []uint32 // RUN only, one per channel in declaration order
	Period  uint32   // PERIOD only
}

// Decoder validates frame structure and extracts typed values. It never
// touches scheduler state.
type Decoder struct {
	// Channels is the number of volumes a RUN frame must carry.
	Channels int
	// Terminator is accepted as a field delimiter in addition to ','.
	Terminator byte
}

// NewDecoder returns a Decoder for a bank of the given size.
func NewDecoder(channels int) Decoder {
	return Decoder{Channels: channels, Terminator: DefaultTerminator}
}

// ExtractUint scans frame from *cursor up to the next delimiter (',' or the
// terminator) or the end of the frame, and converts the scanned bytes as a
// base-10 integer: leading spaces are skipped, digits are read up to the first
// non-digit, and content with no leading digits yields 0. On success *cursor
// is moved past the delimiter.
//
// It returns false when no bytes remain at *cursor (the frame end was already
// consumed as a delimiter) or when the value does not fit in 32 bits. After a
// failure *cursor is unspecified and callers must stop.
func (d Decoder) ExtractUint(frame []byte, cursor *int) (uint32, bool) {
	start := *cursor
	if start < 0 || start > len(frame) {
		return 0, false
	}
	end := start
	for end < len(frame) && frame[end] != delimiter && frame[end] != d.Terminator {
		end++
	}

	field := frame[start:end]
	i := 0
	for i < len(field) && field[i] == ' ' {
		i++
	}
	var value uint64
	for ; i < len(field) && field[i] >= '0' && field[i] <= '9'; i++ {
		value = value*10 + uint64(field[i]-'0')
		if value > math.MaxUint32 {
			return 0, false
		}
	}

	*cursor = end + 1
	return uint32(value), true
}

// Decode parses a frame into a Command. A single trailing terminator is
// ignored.
func (d Decoder) Decode(frame []byte) (Command, error) {
	if n := len(frame); n > 0 && frame[n-1] == d.Terminator {
		frame = frame[:n-1]
	}
	if len(frame) == 0 {
		return Command{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	switch frame[0] {
	case HeaderRun:
		return d.decodeRun(frame)
	case HeaderStop:
		if len(frame) != 1 {
			return Command{Kind: KindStop}, fmt.Errorf("%w: stop frame has %d bytes, want 1", ErrMalformedFrame, len(frame))
		}
		return Command{Kind: KindStop}, nil
	case HeaderPeriod:
		return d.decodePeriod(frame)
	default:
		return Command{}, fmt.Errorf("%w: unknown header %q", ErrMalformedFrame, frame[0])
	}
}

func (d Decoder) decodeRun(frame []byte) (Command, error) {
	cmd := Command{Kind: KindRun, Volumes: make([]uint32, 0, d.Channels)}
	cursor := 1
	for len(cmd.Volumes) < d.Channels {
		v, ok := d.ExtractUint(frame, &cursor)
		if !ok {
			return Command{Kind: KindRun}, fmt.Errorf("%w: run frame has %d of %d values", ErrMalformedFrame, len(cmd.Volumes), d.Channels)
		}
		cmd.Volumes = append(cmd.Volumes, v)
	}
	if cursor <= len(frame) {
		return Command{Kind: KindRun}, fmt.Errorf("%w: run frame has more than %d values", ErrMalformedFrame, d.Channels)
	}
	return cmd, nil
}

func (d Decoder) decodePeriod(frame []byte) (Command, error) {
	cursor := 1
	if len(frame) == 1 {
		return Command{Kind: KindPeriod}, fmt.Errorf("%w: missing value", ErrInvalidPeriod)
	}
	v, ok := d.ExtractUint(frame, &cursor)
	if !ok {
		return Command{Kind: KindPeriod}, fmt.Errorf("%w: cannot extract value", ErrInvalidPeriod)
	}
	if cursor <= len(frame) {
		return Command{Kind: KindPeriod}, fmt.Errorf("%w: period frame has more than one value", ErrMalformedFrame)
	}
	return Command{Kind: KindPeriod, Period: v}, nil
}
