package transport

// FakeTransport is a test double that returns scripted frames and records
// written frames.
type FakeTransport struct {
	// Incoming contains scripted frames. Each ReadFrame consumes one.
	Incoming []Frame

	// Written contains every payload passed to WriteFrame, without terminator.
	Written [][]byte

	// WriteError, if set, will be returned by WriteFrame.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeTransport creates a FakeTransport delivering the given payloads as frames.
func NewFakeTransport(payloads ...string) *FakeTransport {
	f := &FakeTransport{}
	for _, p := range payloads {
		f.Incoming = append(f.Incoming, Frame{Data: []byte(p)})
	}
	return f
}

// ReadFrame returns the next scripted frame, or false when exhausted.
func (f *FakeTransport) ReadFrame() (Frame, bool) {
	if len(f.Incoming) == 0 {
		return Frame{}, false
	}
	frame := f.Incoming[0]
	f.Incoming = f.Incoming[1:]
	return frame, true
}

// WriteFrame records the payload.
func (f *FakeTransport) WriteFrame(payload []byte) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.Written = append(f.Written, buf)
	return nil
}

// Close marks the transport as closed.
func (f *FakeTransport) Close() error {
	f.Closed = true
	return nil
}

// Responses returns the written payloads as strings.
func (f *FakeTransport) Responses() []string {
	out := make([]string, len(f.Written))
	for i, w := range f.Written {
		out[i] = string(w)
	}
	return out
}
