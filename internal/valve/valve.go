// Package valve drives the solenoid outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package valve

import (
	"fmt"
	"sort"

	"github.com/sweeney/valve-mixer/internal/timing"
)

// Driver asserts solenoid outputs.
type Driver interface {
	// Write asserts the output for s and de-asserts every other valve.
	// A nil s de-asserts all valves. The state holds until the next Write.
	Write(s *timing.Solenoid) error

	// Close de-asserts all valves and releases resources.
	Close() error
}

var (
	_ Driver = (*GPIODriver)(nil)
	_ Driver = (*FakeDriver)(nil)
)

// LineMap maps each output group's mask bit (0-7) to a GPIO line offset.
type LineMap map[timing.Group]map[uint8]int

// DefaultChip is the GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultLines wires the bits used by timing.Legacy8 (a superset of
// Canonical7) to free BCM pins.
func DefaultLines() LineMap {
	return LineMap{
		timing.GroupAD: {1: 17, 2: 27, 3: 22, 6: 5},
		timing.GroupEH: {2: 6, 3: 13, 4: 19, 5: 26},
	}
}

type lineKey struct {
	group timing.Group
	bit   uint8
}

// Layout orders the lines of a LineMap and converts a solenoid into the
// value of every line.
type Layout struct {
	offsets []int
	index   map[lineKey]int
}

// NewLayout validates lines and fixes their order: AD bits ascending, then
// EH bits ascending.
func NewLayout(lines LineMap) (*Layout, error) {
	var keys []lineKey
	used := make(map[int]lineKey)
	for group, bits := range lines {
		if group != timing.GroupAD && group != timing.GroupEH {
			return nil, fmt.Errorf("invalid output group %s", group)
		}
		for bit, offset := range bits {
			if bit > 7 {
				return nil, fmt.Errorf("group %s: bit %d out of range", group, bit)
			}
			if offset < 0 {
				return nil, fmt.Errorf("group %s bit %d: negative line offset %d", group, bit, offset)
			}
			k := lineKey{group: group, bit: bit}
			if prev, dup := used[offset]; dup {
				return nil, fmt.Errorf("line %d used by %s bit %d and %s bit %d", offset, prev.group, prev.bit, group, bit)
			}
			used[offset] = k
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no output lines configured")
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].bit < keys[j].bit
	})

	l := &Layout{index: make(map[lineKey]int, len(keys))}
	for i, k := range keys {
		l.offsets = append(l.offsets, lines[k.group][k.bit])
		l.index[k] = i
	}
	return l, nil
}

// Offsets returns the line offsets in layout order.
func (l *Layout) Offsets() []int {
	out := make([]int, len(l.offsets))
	copy(out, l.offsets)
	return out
}

// Values returns one value per line in layout order: 1 for every bit of
// s.Mask in s.Group, 0 elsewhere. A nil s yields all zeros.
func (l *Layout) Values(s *timing.Solenoid) ([]int, error) {
	values := make([]int, len(l.offsets))
	if s == nil {
		return values, nil
	}
	for bit := uint8(0); bit < 8; bit++ {
		if s.Mask&(1<<bit) == 0 {
			continue
		}
		i, ok := l.index[lineKey{group: s.Group, bit: bit}]
		if !ok {
			return nil, fmt.Errorf("solenoid %c: no line for group %s bit %d", s.ID, s.Group, bit)
		}
		values[i] = 1
	}
	return values, nil
}

// Covers checks every solenoid of the topology has a line for each mask bit.
func (l *Layout) Covers(topo timing.Topology) error {
	for _, ch := range topo.Channels {
		sol := ch.Solenoid
		if _, err := l.Values(&sol); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	return nil
}
