//go:build linux

package valve

import (
	"fmt"

	"github.com/sweeney/valve-mixer/internal/timing"
	"github.com/warthog618/go-gpiocdev"
)

// GPIODriver drives valves on actual hardware using the Linux GPIO character device.
type GPIODriver struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	layout *Layout
}

// NewGPIODriver requests every line in the map as an output, initially low.
func NewGPIODriver(chipName string, lines LineMap) (*GPIODriver, error) {
	layout, err := NewLayout(lines)
	if err != nil {
		return nil, fmt.Errorf("line layout: %w", err)
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("valve-mixer"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	offsets := layout.Offsets()
	off := make([]int, len(offsets))
	req, err := chip.RequestLines(offsets, gpiocdev.AsOutput(off...))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}

	return &GPIODriver{
		chip:   chip,
		lines:  req,
		layout: layout,
	}, nil
}

// Write asserts s and de-asserts all other valves in a single update.
func (d *GPIODriver) Write(s *timing.Solenoid) error {
	values, err := d.layout.Values(s)
	if err != nil {
		return err
	}
	if err := d.lines.SetValues(values); err != nil {
		return fmt.Errorf("set lines: %w", err)
	}
	return nil
}

// Close de-asserts every valve, then reconfigures the lines as inputs with
// pull-down (matching Pi boot defaults) before releasing them.
func (d *GPIODriver) Close() error {
	var errs []error

	if d.lines != nil {
		if err := d.Write(nil); err != nil {
			errs = append(errs, fmt.Errorf("release valves: %w", err))
		}
		if err := d.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
		}
		if err := d.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
