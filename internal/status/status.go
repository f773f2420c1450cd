// Package status provides a thread-safe status tracker for the valve-mixer daemon.
// It is written by the polling loop and read by HTTP handlers and MQTT events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/valve-mixer/internal/timing"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Port        string
	Baud        int
	PollMs      int64
	TickUs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// ChannelState is one channel of the topology with its current volume and
// pulse duration. Duration is zero for channels outside the schedule.
type ChannelState struct {
	Name     string
	Solenoid string
	Group    string
	Mask     uint8
	Volume   uint32
	Duration uint32
}

// Counts holds command and scheduler counters since startup.
type Counts struct {
	Frames      int // frames received, including overflowed ones
	OK          int // "ok" responses
	Errors      int // "error" responses
	Overflows   int // frames discarded for exceeding the buffer
	Transitions int // solenoid changes driven by the scheduler
}

// CommandRecord describes the last command processed.
type CommandRecord struct {
	At    time.Time
	Frame string
	Kind  string
	OK    bool
	Error string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Running       bool
	Period        uint32
	Scale         uint32
	Channels      []ChannelState
	Current       string // name of the asserted channel, empty when idle
	Counts        Counts
	LastCommand   *CommandRecord
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update copies the scheduler state into the tracker.
func (t *Tracker) Update(sched *timing.Scheduler) {
	durations := make(map[string]uint32)
	for _, e := range sched.Active() {
		durations[e.Channel] = e.Duration
	}

	channels := sched.Channels()
	states := make([]ChannelState, len(channels))
	for i, ch := range channels {
		states[i] = ChannelState{
			Name:     ch.Name,
			Solenoid: string(rune(ch.Solenoid.ID)),
			Group:    ch.Solenoid.Group.String(),
			Mask:     ch.Solenoid.Mask,
			Volume:   ch.Volume,
			Duration: durations[ch.Name],
		}
	}

	current := ""
	if e, ok := sched.Current(); ok {
		current = e.Channel
	}

	t.mu.Lock()
	t.snap.Running = sched.Running()
	t.snap.Period = sched.Period()
	t.snap.Scale = sched.Scale()
	t.snap.Channels = states
	t.snap.Current = current
	t.mu.Unlock()
}

// RecordCommand counts a processed frame and remembers it as the last command.
func (t *Tracker) RecordCommand(rec CommandRecord) {
	t.mu.Lock()
	t.snap.Counts.Frames++
	if rec.OK {
		t.snap.Counts.OK++
	} else {
		t.snap.Counts.Errors++
	}
	t.snap.LastCommand = &rec
	t.mu.Unlock()
}

// RecordOverflow counts a frame that was discarded for exceeding the buffer.
func (t *Tracker) RecordOverflow() {
	t.mu.Lock()
	t.snap.Counts.Overflows++
	t.mu.Unlock()
}

// RecordTransition counts a scheduler-driven solenoid change.
func (t *Tracker) RecordTransition() {
	t.mu.Lock()
	t.snap.Counts.Transitions++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Channels != nil {
		s.Channels = append([]ChannelState(nil), s.Channels...)
	}
	if s.LastCommand != nil {
		rec := *s.LastCommand
		s.LastCommand = &rec
	}
	if s.Network != nil {
		net := *s.Network
		s.Network = &net
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
