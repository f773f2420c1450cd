package timing

import (
	"errors"
	"fmt"
)

// ChannelSpec is the static part of a channel: its name and output wiring.
type ChannelSpec struct {
	Name     string
	Solenoid Solenoid
}

// Topology describes the valve bank: channel order, per-channel wiring and
// the fixed-point scale used when computing pulse durations.
type Topology struct {
	Channels []ChannelSpec
	Scale    uint32
}

// Canonical7 is the seven-channel bank (A-G). A-D sit on the AD group and
// E-G on the EH group.
func Canonical7() Topology {
	return Topology{
		Channels: []ChannelSpec{
			{Name: "A", Solenoid: Solenoid{ID: 'a', Group: GroupAD, Mask: 1 << 3}},
			{Name: "B", Solenoid: Solenoid{ID: 'b', Group: GroupAD, Mask: 1 << 2}},
			{Name: "C", Solenoid: Solenoid{ID: 'c', Group: GroupAD, Mask: 1 << 1}},
			{Name: "D", Solenoid: Solenoid{ID: 'd', Group: GroupAD, Mask: 1 << 6}},
			{Name: "E", Solenoid: Solenoid{ID: 'e', Group: GroupEH, Mask: 1 << 5}},
			{Name: "F", Solenoid: Solenoid{ID: 'f', Group: GroupEH, Mask: 1 << 4}},
			{Name: "G", Solenoid: Solenoid{ID: 'g', Group: GroupEH, Mask: 1 << 3}},
		},
		Scale: DefaultScale,
	}
}

// Legacy8 is the earlier eight-channel bank (A-H), one valve per channel.
func Legacy8() Topology {
	t := Canonical7()
	t.Channels = append(t.Channels, ChannelSpec{
		Name: "H", Solenoid: Solenoid{ID: 'h', Group: GroupEH, Mask: 1 << 2},
	})
	return t
}

// Validate checks the descriptor is usable by the scheduler.
func (t Topology) Validate() error {
	if len(t.Channels) == 0 {
		return errors.New("topology: no channels")
	}
	if len(t.Channels) > MaxChannels {
		return fmt.Errorf("topology: %d channels exceeds maximum of %d", len(t.Channels), MaxChannels)
	}
	if t.Scale == 0 {
		return errors.New("topology: scale must be > 0")
	}
	names := make(map[string]bool, len(t.Channels))
	ids := make(map[byte]bool, len(t.Channels))
	for i, ch := range t.Channels {
		if ch.Name == "" {
			return fmt.Errorf("topology: channel %d has no name", i)
		}
		if names[ch.Name] {
			return fmt.Errorf("topology: duplicate channel name %q", ch.Name)
		}
		names[ch.Name] = true
		if ids[ch.Solenoid.ID] {
			return fmt.Errorf("topology: duplicate solenoid id %q", ch.Solenoid.ID)
		}
		ids[ch.Solenoid.ID] = true
		if ch.Solenoid.Mask == 0 {
			return fmt.Errorf("topology: channel %s has empty mask", ch.Name)
		}
		if ch.Solenoid.Group != GroupAD && ch.Solenoid.Group != GroupEH {
			return fmt.Errorf("topology: channel %s has invalid group %s", ch.Name, ch.Solenoid.Group)
		}
	}
	return nil
}

// NewChannelSet returns a channel set for this topology with all volumes at zero.
func (t Topology) NewChannelSet() ChannelSet {
	set := make(ChannelSet, len(t.Channels))
	for i, spec := range t.Channels {
		set[i] = Channel{Name: spec.Name, Solenoid: spec.Solenoid}
	}
	return set
}
