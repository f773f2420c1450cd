package transport

// Framer accumulates bytes into frames. Not safe for concurrent use.
type Framer struct {
	terminator byte
	max        int
	buf        []byte
	overflow   bool
}

// NewFramer creates a Framer that splits on terminator and accepts payloads
// of at most max bytes. A non-positive max falls back to DefaultMaxFrame.
func NewFramer(terminator byte, max int) *Framer {
	if max <= 0 {
		max = DefaultMaxFrame
	}
	return &Framer{
		terminator: terminator,
		max:        max,
		buf:        make([]byte, 0, max),
	}
}

// Push feeds one byte. It returns a frame and true when b completes one.
// A terminator with nothing before it is ignored.
func (f *Framer) Push(b byte) (Frame, bool) {
	if b == f.terminator {
		if f.overflow {
			f.overflow = false
			f.buf = f.buf[:0]
			return Frame{Err: ErrFrameOverflow}, true
		}
		if len(f.buf) == 0 {
			return Frame{}, false
		}
		data := make([]byte, len(f.buf))
		copy(data, f.buf)
		f.buf = f.buf[:0]
		return Frame{Data: data}, true
	}
	if f.overflow {
		return Frame{}, false
	}
	if len(f.buf) >= f.max {
		f.overflow = true
		return Frame{}, false
	}
	f.buf = append(f.buf, b)
	return Frame{}, false
}

// Pending returns the number of buffered bytes of an incomplete frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}
