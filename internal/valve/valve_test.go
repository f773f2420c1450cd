package valve

import (
	"errors"
	"strings"
	"testing"

	"github.com/sweeney/valve-mixer/internal/timing"
)

func TestDefaultLinesCoverTopologies(t *testing.T) {
	layout, err := NewLayout(DefaultLines())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if err := layout.Covers(timing.Canonical7()); err != nil {
		t.Errorf("Canonical7: %v", err)
	}
	if err := layout.Covers(timing.Legacy8()); err != nil {
		t.Errorf("Legacy8: %v", err)
	}
}

func TestLayoutOrder(t *testing.T) {
	layout, err := NewLayout(DefaultLines())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	want := []int{17, 27, 22, 5, 6, 13, 19, 26}
	got := layout.Offsets()
	if len(got) != len(want) {
		t.Fatalf("offsets: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLayoutValues(t *testing.T) {
	layout, _ := NewLayout(DefaultLines())
	topo := timing.Canonical7()

	// A is AD bit 3 -> third line in order (AD bits 1,2,3,6).
	a := topo.Channels[0].Solenoid
	values, err := layout.Values(&a)
	if err != nil {
		t.Fatalf("Values(A): %v", err)
	}
	want := []int{0, 0, 1, 0, 0, 0, 0, 0}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("A line %d: got %d, want %d", i, values[i], want[i])
		}
	}

	// G is EH bit 3 -> sixth line.
	g := topo.Channels[6].Solenoid
	values, _ = layout.Values(&g)
	want = []int{0, 0, 0, 0, 0, 1, 0, 0}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("G line %d: got %d, want %d", i, values[i], want[i])
		}
	}
}

func TestLayoutValuesReleaseAll(t *testing.T) {
	layout, _ := NewLayout(DefaultLines())
	values, err := layout.Values(nil)
	if err != nil {
		t.Fatalf("Values(nil): %v", err)
	}
	for i, v := range values {
		if v != 0 {
			t.Errorf("line %d: got %d, want 0", i, v)
		}
	}
}

func TestLayoutValuesMultiBitMask(t *testing.T) {
	layout, _ := NewLayout(DefaultLines())
	s := timing.Solenoid{ID: 'x', Group: timing.GroupEH, Mask: 1<<2 | 1<<5}
	values, err := layout.Values(&s)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	want := []int{0, 0, 0, 0, 1, 0, 0, 1}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("line %d: got %d, want %d", i, values[i], want[i])
		}
	}
}

func TestLayoutValuesUnmappedBit(t *testing.T) {
	layout, _ := NewLayout(DefaultLines())
	s := timing.Solenoid{ID: 'z', Group: timing.GroupAD, Mask: 1 << 7}
	if _, err := layout.Values(&s); err == nil {
		t.Error("expected error for unmapped bit")
	}
}

func TestNewLayoutErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines LineMap
		want  string
	}{
		{"empty", LineMap{}, "no output lines"},
		{"bit range", LineMap{timing.GroupAD: {8: 4}}, "out of range"},
		{"negative", LineMap{timing.GroupAD: {1: -1}}, "negative"},
		{"duplicate", LineMap{timing.GroupAD: {1: 4}, timing.GroupEH: {1: 4}}, "line 4 used"},
		{"bad group", LineMap{timing.Group(7): {1: 4}}, "invalid output group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.lines)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLayoutCoversMissingLine(t *testing.T) {
	lines := DefaultLines()
	delete(lines[timing.GroupEH], 5) // E
	layout, err := NewLayout(lines)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	err = layout.Covers(timing.Canonical7())
	if err == nil || !strings.Contains(err.Error(), "channel E") {
		t.Errorf("expected channel E error, got %v", err)
	}
}

func TestFakeDriverRecordsWrites(t *testing.T) {
	f := NewFakeDriver()
	if f.Asserted() != nil {
		t.Error("new driver should have nothing asserted")
	}

	a := timing.Canonical7().Channels[0].Solenoid
	b := timing.Canonical7().Channels[1].Solenoid
	f.Write(&a)
	f.Write(&b)
	f.Write(nil)

	if got := f.IDs(); got != "ab-" {
		t.Errorf("IDs: got %q, want %q", got, "ab-")
	}
	if f.Asserted() != nil {
		t.Error("expected release after nil write")
	}

	// Recorded solenoids must not alias the caller's value.
	a.ID = 'z'
	if f.Writes[0].ID != 'a' {
		t.Error("write aliased caller value")
	}
}

func TestFakeDriverError(t *testing.T) {
	f := NewFakeDriver()
	f.WriteError = errors.New("simulated error")
	if err := f.Write(nil); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Writes) != 0 {
		t.Error("failed write should not be recorded")
	}
}

func TestFakeDriverCloseReleases(t *testing.T) {
	f := NewFakeDriver()
	a := timing.Canonical7().Channels[0].Solenoid
	f.Write(&a)
	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.Asserted() != nil {
		t.Error("Close should release all valves")
	}
	f.Reset()
	if f.Closed || len(f.Writes) != 0 {
		t.Error("Reset should clear state")
	}
}
