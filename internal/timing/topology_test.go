package timing

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestCanonical7Valid(t *testing.T) {
	topo := Canonical7()
	if err := topo.Validate(); err != nil {
		t.Fatalf("Canonical7 invalid: %v", err)
	}
	if len(topo.Channels) != 7 {
		t.Errorf("channels: got %d, want 7", len(topo.Channels))
	}
	for i, want := range "ABCDEFG" {
		if topo.Channels[i].Name != string(want) {
			t.Errorf("channel %d: got %s, want %c", i, topo.Channels[i].Name, want)
		}
	}
	for _, ch := range topo.Channels[:4] {
		if ch.Solenoid.Group != GroupAD {
			t.Errorf("%s: expected group AD, got %s", ch.Name, ch.Solenoid.Group)
		}
	}
	for _, ch := range topo.Channels[4:] {
		if ch.Solenoid.Group != GroupEH {
			t.Errorf("%s: expected group EH, got %s", ch.Name, ch.Solenoid.Group)
		}
	}
}

func TestLegacy8Valid(t *testing.T) {
	topo := Legacy8()
	if err := topo.Validate(); err != nil {
		t.Fatalf("Legacy8 invalid: %v", err)
	}
	if len(topo.Channels) != 8 {
		t.Errorf("channels: got %d, want 8", len(topo.Channels))
	}
	if topo.Channels[7].Name != "H" {
		t.Errorf("last channel: got %s, want H", topo.Channels[7].Name)
	}
	// Legacy8 must not alias Canonical7's backing array.
	if len(Canonical7().Channels) != 7 {
		t.Error("Legacy8 modified Canonical7")
	}
}

func TestTopologyValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Topology)
		want   string
	}{
		{"no channels", func(tp *Topology) { tp.Channels = nil }, "no channels"},
		{"too many", func(tp *Topology) {
			for i := 0; i < 2; i++ {
				tp.Channels = append(tp.Channels, ChannelSpec{
					Name:     string(rune('X' + i)),
					Solenoid: Solenoid{ID: byte('x' + i), Group: GroupEH, Mask: 1},
				})
			}
		}, "exceeds maximum"},
		{"zero scale", func(tp *Topology) { tp.Scale = 0 }, "scale"},
		{"duplicate name", func(tp *Topology) { tp.Channels[1].Name = "A" }, "duplicate channel name"},
		{"duplicate id", func(tp *Topology) { tp.Channels[1].Solenoid.ID = 'a' }, "duplicate solenoid id"},
		{"empty mask", func(tp *Topology) { tp.Channels[2].Solenoid.Mask = 0 }, "empty mask"},
		{"bad group", func(tp *Topology) { tp.Channels[0].Solenoid.Group = Group(9) }, "invalid group"},
		{"empty name", func(tp *Topology) { tp.Channels[0].Name = "" }, "no name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := Canonical7()
			tt.modify(&topo)
			err := topo.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParseGroup(t *testing.T) {
	for _, s := range []string{"AD", "ad", " Ad "} {
		g, err := ParseGroup(s)
		if err != nil || g != GroupAD {
			t.Errorf("ParseGroup(%q): got %v, %v", s, g, err)
		}
	}
	if g, err := ParseGroup("EH"); err != nil || g != GroupEH {
		t.Errorf("ParseGroup(EH): got %v, %v", g, err)
	}
	if _, err := ParseGroup("XY"); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestChannelSetHelpers(t *testing.T) {
	set := Canonical7().NewChannelSet()
	if set.Total() != 0 {
		t.Errorf("new set total: got %d", set.Total())
	}
	if _, ok := set.WithVolumes([]uint32{1, 2}); ok {
		t.Error("WithVolumes should reject wrong count")
	}
	next, ok := set.WithVolumes([]uint32{1, 2, 3, 4, 5, 6, 7})
	if !ok {
		t.Fatal("WithVolumes failed")
	}
	if next.Total() != 28 {
		t.Errorf("total: got %d, want 28", next.Total())
	}
	if set.Total() != 0 {
		t.Error("WithVolumes modified the receiver")
	}
	if next.Cleared().Total() != 0 {
		t.Error("Cleared left volumes set")
	}
	if next.Total() != 28 {
		t.Error("Cleared modified the receiver")
	}
}

func TestClockTicks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start, time.Millisecond)

	if got := c.Ticks(start); got != 0 {
		t.Errorf("ticks at start: got %d", got)
	}
	if got := c.Ticks(start.Add(1500 * time.Microsecond)); got != 1 {
		t.Errorf("ticks at 1.5ms: got %d, want 1", got)
	}
	if got := c.Ticks(start.Add(4 * time.Second)); got != 4000 {
		t.Errorf("ticks at 4s: got %d, want 4000", got)
	}
}

func TestClockWraps(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start, time.Millisecond)

	wrap := time.Duration(math.MaxUint32+1) * time.Millisecond
	before := c.Ticks(start.Add(wrap - 10*time.Millisecond))
	after := c.Ticks(start.Add(wrap + 10*time.Millisecond))
	if before != math.MaxUint32-9 {
		t.Errorf("before wrap: got %d", before)
	}
	if after != 10 {
		t.Errorf("after wrap: got %d, want 10", after)
	}
	if after-before != 20 {
		t.Errorf("elapsed across wrap: got %d, want 20", after-before)
	}
}

func TestClockDefaultUnit(t *testing.T) {
	c := NewClock(time.Time{}, 0)
	if c.Unit() != time.Millisecond {
		t.Errorf("unit: got %v, want 1ms", c.Unit())
	}
}
