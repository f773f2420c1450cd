//go:build !linux

package valve

import (
	"errors"

	"github.com/sweeney/valve-mixer/internal/timing"
)

// GPIODriver is not available on non-Linux platforms.
type GPIODriver struct{}

// NewGPIODriver returns an error on non-Linux platforms.
func NewGPIODriver(chipName string, lines LineMap) (*GPIODriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Write is not implemented on non-Linux platforms.
func (d *GPIODriver) Write(s *timing.Solenoid) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *GPIODriver) Close() error {
	return nil
}
