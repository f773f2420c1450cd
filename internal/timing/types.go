// Package timing contains the pulse-scheduling engine for the valve bank.
// This package has NO external dependencies (no GPIO, serial, MQTT or time.Sleep).
// Time is always injectable as a fixed-width tick count.
package timing

import (
	"fmt"
	"strings"
)

// DefaultScale is the fixed-point factor used to keep channel shares precise
// under integer division.
const DefaultScale = 1000

// MaxChannels is the largest bank the two output groups can address.
const MaxChannels = 8

// Group identifies the physical output port a solenoid lives on.
type Group uint8

const (
	GroupAD Group = iota
	GroupEH
)

func (g Group) String() string {
	switch g {
	case GroupAD:
		return "AD"
	case GroupEH:
		return "EH"
	default:
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
}

// ParseGroup converts "AD" or "EH" (case-insensitive) into a Group.
func ParseGroup(s string) (Group, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AD":
		return GroupAD, nil
	case "EH":
		return GroupEH, nil
	default:
		return 0, fmt.Errorf("unknown output group %q", s)
	}
}

// Solenoid is the logical identifier of one valve plus the bits to assert
// on its output group.
type Solenoid struct {
	ID    byte
	Mask  uint8
	Group Group
}

func (s Solenoid) String() string {
	return fmt.Sprintf("%c(%s:0x%02x)", s.ID, s.Group, s.Mask)
}

// Channel is one named, independently proportioned actuation slot.
type Channel struct {
	Name     string
	Volume   uint32
	Solenoid Solenoid
}

// ChannelSet is an ordered snapshot of every channel in the topology.
// Declaration order is the round-robin order.
type ChannelSet []Channel

// Total returns the sum of all volumes. It is 64 bits wide so eight
// maximal volumes cannot overflow.
func (c ChannelSet) Total() uint64 {
	var total uint64
	for _, ch := range c {
		total += uint64(ch.Volume)
	}
	return total
}

// Volumes returns the volumes in declaration order.
func (c ChannelSet) Volumes() []uint32 {
	out := make([]uint32, len(c))
	for i, ch := range c {
		out[i] = ch.Volume
	}
	return out
}

// Clone returns an independent copy.
func (c ChannelSet) Clone() ChannelSet {
	if c == nil {
		return nil
	}
	out := make(ChannelSet, len(c))
	copy(out, c)
	return out
}

// WithVolumes returns a copy with volumes replaced in declaration order.
// Returns false if the number of volumes does not match the channel count.
func (c ChannelSet) WithVolumes(volumes []uint32) (ChannelSet, bool) {
	if len(volumes) != len(c) {
		return nil, false
	}
	out := c.Clone()
	for i := range out {
		out[i].Volume = volumes[i]
	}
	return out, true
}

// Cleared returns a copy with every volume set to zero.
func (c ChannelSet) Cleared() ChannelSet {
	out := c.Clone()
	for i := range out {
		out[i].Volume = 0
	}
	return out
}

// Entry is one slot of the active schedule.
type Entry struct {
	Channel  string
	Solenoid Solenoid
	Duration uint32
}
