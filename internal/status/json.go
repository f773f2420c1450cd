package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Running       bool          `json:"running"`
	Period        uint32        `json:"period"`
	Scale         uint32        `json:"scale"`
	Current       string        `json:"current"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	LastCommand   *CommandJSON  `json:"last_command,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Name     string `json:"name"`
	Solenoid string `json:"solenoid"`
	Group    string `json:"group"`
	Mask     uint8  `json:"mask"`
	Volume   uint32 `json:"volume"`
	Duration uint32 `json:"duration"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Frames      int `json:"frames"`
	OK          int `json:"ok"`
	Errors      int `json:"errors"`
	Overflows   int `json:"overflows"`
	Transitions int `json:"transitions"`
}

// CommandJSON is the JSON representation of the last command.
type CommandJSON struct {
	Timestamp string `json:"timestamp"`
	Frame     string `json:"frame"`
	Kind      string `json:"kind"`
	Response  string `json:"response"`
	Error     string `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Port        string `json:"port"`
	Baud        int    `json:"baud"`
	PollMs      int64  `json:"poll_ms"`
	TickUs      int64  `json:"tick_us"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, len(snap.Channels))
	for i, ch := range snap.Channels {
		channels[i] = ChannelJSON(ch)
	}

	inner := StatusInner{
		Running:       snap.Running,
		Period:        snap.Period,
		Scale:         snap.Scale,
		Current:       snap.Current,
		Channels:      channels,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON(snap.Counts),
		Config: ConfigJSON{
			Port:        snap.Config.Port,
			Baud:        snap.Config.Baud,
			PollMs:      snap.Config.PollMs,
			TickUs:      snap.Config.TickUs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if c := snap.LastCommand; c != nil {
		response := "error"
		if c.OK {
			response = "ok"
		}
		inner.LastCommand = &CommandJSON{
			Timestamp: c.At.UTC().Format(time.RFC3339),
			Frame:     c.Frame,
			Kind:      c.Kind,
			Response:  response,
			Error:     c.Error,
		}
	}

	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
