package protocol

import (
	"fmt"

	"github.com/sweeney/valve-mixer/internal/timing"
)

// Response frames.
const (
	ResponseOK    = "ok"
	ResponseError = "error"
	// ReadyBanner is sent once when the link comes up.
	ReadyBanner = "ready"
)

// Response renders a command outcome as its acknowledgement frame payload.
func Response(ok bool) []byte {
	if ok {
		return []byte(ResponseOK)
	}
	return []byte(ResponseError)
}

// Result is the outcome of handling one frame.
type Result struct {
	Command Command
	OK      bool
	// Err explains a failure. On success it is nil, or ErrAllChannelsIdle
	// when the command stopped actuation.
	Err error
}

// Stopped reports whether the command left the scheduler idle.
func (r Result) Stopped() bool {
	return r.OK && r.Err == ErrAllChannelsIdle
}

// Response returns the acknowledgement payload for this result.
func (r Result) Response() []byte {
	return Response(r.OK)
}

// Dispatcher applies decoded commands to a scheduler.
type Dispatcher struct {
	decoder Decoder
	sched   *timing.Scheduler
}

// NewDispatcher creates a Dispatcher bound to the given scheduler.
func NewDispatcher(decoder Decoder, sched *timing.Scheduler) *Dispatcher {
	return &Dispatcher{decoder: decoder, sched: sched}
}

// Handle decodes a frame and applies it. Decode failures leave the scheduler
// untouched.
func (d *Dispatcher) Handle(frame []byte) Result {
	cmd, err := d.decoder.Decode(frame)
	if err != nil {
		return Result{Command: cmd, Err: err}
	}
	return d.Dispatch(cmd)
}

// Dispatch applies an already decoded command.
func (d *Dispatcher) Dispatch(cmd Command) Result {
	switch cmd.Kind {
	case KindRun:
		set, ok := d.sched.Channels().WithVolumes(cmd.Volumes)
		if !ok {
			return Result{Command: cmd, Err: fmt.Errorf("%w: %d volumes for %d channels", ErrMalformedFrame, len(cmd.Volumes), len(d.sched.Channels()))}
		}
		return d.apply(cmd, set)

	case KindStop:
		return d.apply(cmd, d.sched.Channels().Cleared())

	case KindPeriod:
		if cmd.Period == 0 {
			return Result{Command: cmd, Err: fmt.Errorf("%w: zero", ErrInvalidPeriod)}
		}
		if !d.sched.SetPeriod(cmd.Period) {
			return Result{Command: cmd, Err: fmt.Errorf("period %d: %w", cmd.Period, ErrNoActivePulses)}
		}
		return Result{Command: cmd, OK: true}

	default:
		return Result{Command: cmd, Err: fmt.Errorf("%w: unknown command", ErrMalformedFrame)}
	}
}

// apply hands a channel set to the scheduler. A zero total is reported by
// the scheduler as nothing to run; here it is a successful stop.
func (d *Dispatcher) apply(cmd Command, set timing.ChannelSet) Result {
	if d.sched.ApplyChannels(set) {
		return Result{Command: cmd, OK: true}
	}
	if set.Total() == 0 {
		return Result{Command: cmd, OK: true, Err: ErrAllChannelsIdle}
	}
	return Result{Command: cmd, Err: ErrNoActivePulses}
}
