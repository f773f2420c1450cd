// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for command outcome events.
const Topic = "valve-mixer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "valve-mixer/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a command outcome event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event CommandEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandEvent describes one processed serial command.
type CommandEvent struct {
	Timestamp time.Time
	Command   string   // RUN, STOP, PERIOD or UNKNOWN
	Frame     string   // raw frame payload
	OK        bool     // response sent to the peer
	Error     string   // decoder or scheduler diagnostic, if any
	Period    uint32   // period after the command
	Running   bool     // scheduler state after the command
	Volumes   []uint32 // channel volumes after the command
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Command CommandPayload `json:"command"`
}

// CommandPayload contains the command event details.
type CommandPayload struct {
	Timestamp string   `json:"timestamp"`
	Kind      string   `json:"kind"`
	Frame     string   `json:"frame"`
	Response  string   `json:"response"`
	Error     string   `json:"error,omitempty"`
	Period    uint32   `json:"period"`
	Running   bool     `json:"running"`
	Volumes   []uint32 `json:"volumes"`
}

// FormatPayload creates the JSON payload for a command event.
func FormatPayload(event CommandEvent) ([]byte, error) {
	response := "error"
	if event.OK {
		response = "ok"
	}
	volumes := event.Volumes
	if volumes == nil {
		volumes = []uint32{}
	}
	payload := Payload{
		Command: CommandPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Kind:      event.Command,
			Frame:     event.Frame,
			Response:  response,
			Error:     event.Error,
			Period:    event.Period,
			Running:   event.Running,
			Volumes:   volumes,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED, SHUTDOWN) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(CommandEvent) error      { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
