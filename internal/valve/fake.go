package valve

import "github.com/sweeney/valve-mixer/internal/timing"

// FakeDriver is a test double that records every write.
type FakeDriver struct {
	// Writes contains every solenoid written, in order. A nil entry is a
	// release of all valves.
	Writes []*timing.Solenoid

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Write records s.
func (f *FakeDriver) Write(s *timing.Solenoid) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if s == nil {
		f.Writes = append(f.Writes, nil)
		return nil
	}
	sol := *s
	f.Writes = append(f.Writes, &sol)
	return nil
}

// Close records a release and marks the driver closed.
func (f *FakeDriver) Close() error {
	f.Writes = append(f.Writes, nil)
	f.Closed = true
	return nil
}

// Asserted returns the current solenoid, or nil if all valves are released.
func (f *FakeDriver) Asserted() *timing.Solenoid {
	if len(f.Writes) == 0 {
		return nil
	}
	return f.Writes[len(f.Writes)-1]
}

// IDs returns the written solenoid IDs in order, with '-' for a release.
func (f *FakeDriver) IDs() string {
	out := make([]byte, len(f.Writes))
	for i, w := range f.Writes {
		if w == nil {
			out[i] = '-'
			continue
		}
		out[i] = w.ID
	}
	return string(out)
}

// Reset clears recorded writes.
func (f *FakeDriver) Reset() {
	f.Writes = nil
	f.WriteError = nil
	f.Closed = false
}
