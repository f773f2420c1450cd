package timing

// PulseDurations returns the pulse duration of every channel in declaration
// order: period * (volume * scale / total) / scale. Channels with zero volume
// get zero. Returns nil when total volume is zero.
func PulseDurations(set ChannelSet, period, scale uint32) []uint32 {
	total := set.Total()
	if total == 0 || scale == 0 {
		return nil
	}
	out := make([]uint32, len(set))
	for i, ch := range set {
		share := uint64(ch.Volume) * uint64(scale) / total
		out[i] = uint32(uint64(period) * share / uint64(scale))
	}
	return out
}

// buildActive compacts the pulse durations into the ordered active schedule,
// dropping channels whose duration truncated to zero.
func buildActive(set ChannelSet, period, scale uint32) []Entry {
	durations := PulseDurations(set, period, scale)
	var active []Entry
	for i, d := range durations {
		if d == 0 {
			continue
		}
		active = append(active, Entry{
			Channel:  set[i].Name,
			Solenoid: set[i].Solenoid,
			Duration: d,
		})
	}
	return active
}

// Scheduler owns the period, the channel volumes and the active schedule, and
// decides on each poll which solenoid is due. Not safe for concurrent use;
// it is owned by the polling loop.
type Scheduler struct {
	scale    uint32
	period   uint32
	channels ChannelSet

	active  []Entry
	index   int
	last    uint32
	started bool
	running bool
}

// NewScheduler creates an idle scheduler for the topology with the given
// initial period. A zero scale falls back to DefaultScale.
func NewScheduler(topo Topology, period uint32) *Scheduler {
	scale := topo.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	return &Scheduler{
		scale:    scale,
		period:   period,
		channels: topo.NewChannelSet(),
	}
}

// SetPeriod sets the cycle period. Zero is rejected. While running, the
// schedule is rebuilt with the new period; if that would leave no channel
// with a non-zero pulse the period is rejected and nothing changes.
func (s *Scheduler) SetPeriod(period uint32) bool {
	if period == 0 {
		return false
	}
	if s.running {
		active := buildActive(s.channels, period, s.scale)
		if len(active) == 0 {
			return false
		}
		s.install(active)
	}
	s.period = period
	return true
}

// ApplyChannels replaces the channel configuration. A total volume of zero
// stops the scheduler and reports false. Otherwise the schedule is rebuilt,
// the scheduler runs from the first active channel, and true is returned.
// A set of the wrong size, or one whose pulses all truncate to zero, is
// rejected without touching state.
func (s *Scheduler) ApplyChannels(set ChannelSet) bool {
	if len(set) != len(s.channels) {
		return false
	}
	if set.Total() == 0 {
		s.channels = set.Clone()
		s.active = nil
		s.index = 0
		s.started = false
		s.running = false
		return false
	}
	active := buildActive(set, s.period, s.scale)
	if len(active) == 0 {
		return false
	}
	s.channels = set.Clone()
	s.install(active)
	return true
}

func (s *Scheduler) install(active []Entry) {
	s.active = active
	s.index = 0
	s.started = false
	s.running = true
}

// Advance is called on every poll with the current tick count. It returns the
// solenoid to assert and true when a transition is due, and false otherwise
// (not running, or the current pulse has not yet elapsed). The first call
// after a rebuild asserts the first active channel immediately.
//
// Elapsed time is computed with uint32 subtraction, so a tick counter that
// wraps between transitions still yields the right duration.
func (s *Scheduler) Advance(now uint32) (Solenoid, bool) {
	if !s.running || len(s.active) == 0 {
		return Solenoid{}, false
	}
	if !s.started {
		s.started = true
		s.index = 0
		s.last = now
		return s.active[0].Solenoid, true
	}
	elapsed := now - s.last
	if elapsed < s.active[s.index].Duration {
		return Solenoid{}, false
	}
	s.index = (s.index + 1) % len(s.active)
	s.last = now
	return s.active[s.index].Solenoid, true
}

// Period returns the current cycle period.
func (s *Scheduler) Period() uint32 {
	return s.period
}

// Scale returns the fixed-point scale factor.
func (s *Scheduler) Scale() uint32 {
	return s.scale
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	return s.running
}

// Channels returns a copy of the last applied channel set.
func (s *Scheduler) Channels() ChannelSet {
	return s.channels.Clone()
}

// Active returns a copy of the active schedule.
func (s *Scheduler) Active() []Entry {
	if s.active == nil {
		return nil
	}
	out := make([]Entry, len(s.active))
	copy(out, s.active)
	return out
}

// Current returns the active entry currently being pulsed. Returns false if
// stopped or if no transition has happened since the last rebuild.
func (s *Scheduler) Current() (Entry, bool) {
	if !s.running || !s.started || len(s.active) == 0 {
		return Entry{}, false
	}
	return s.active[s.index], true
}
