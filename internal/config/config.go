// Package config loads the daemon configuration from YAML. Missing fields
// fall back to defaults so a partial file, or no file, is valid.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/valve-mixer/internal/protocol"
	"github.com/sweeney/valve-mixer/internal/timing"
	"github.com/sweeney/valve-mixer/internal/transport"
	"github.com/sweeney/valve-mixer/internal/valve"
)

// Config represents the daemon configuration.
type Config struct {
	Serial   SerialConfig    `yaml:"serial"`
	Timing   TimingConfig    `yaml:"timing"`
	Topology []ChannelConfig `yaml:"topology"`
	GPIO     GPIOConfig      `yaml:"gpio"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	HTTP     HTTPConfig      `yaml:"http"`
	Log      LogConfig       `yaml:"log"`
}

// SerialConfig contains serial link configuration.
type SerialConfig struct {
	Port       string `yaml:"port"`
	Baud       int    `yaml:"baud"`
	Terminator string `yaml:"terminator"` // single byte, e.g. "\n"
	MaxFrame   int    `yaml:"max_frame"`  // largest payload in bytes
}

// TimingConfig contains scheduler parameters.
type TimingConfig struct {
	Period uint32        `yaml:"period"` // initial cycle period in ticks
	Tick   time.Duration `yaml:"tick"`   // duration of one tick
	Scale  uint32        `yaml:"scale"`  // fixed-point scale factor
	Poll   time.Duration `yaml:"poll"`   // polling loop interval
}

// ChannelConfig describes one channel of the topology.
type ChannelConfig struct {
	Name     string `yaml:"name"`
	Solenoid string `yaml:"solenoid"` // single character id
	Group    string `yaml:"group"`    // AD or EH
	Mask     uint8  `yaml:"mask"`
}

// GPIOConfig maps output group bits to GPIO line offsets. Groups absent
// from the file keep their default wiring.
type GPIOConfig struct {
	Chip   string                   `yaml:"chip"`
	Groups map[string]map[uint8]int `yaml:"groups"`
}

// MQTTConfig contains event publishing configuration. An empty broker
// disables publishing.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables heartbeats
	Buffer    int           `yaml:"buffer"`    // messages held while disconnected
}

// HTTPConfig contains status server configuration. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig contains log file rotation settings. An empty file logs to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a default configuration: the seven-channel bank on a
// Raspberry Pi with the firmware's 4000 ms period.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:       "/dev/ttyACM0",
			Baud:       transport.DefaultBaudRate,
			Terminator: string(rune(protocol.DefaultTerminator)),
			MaxFrame:   transport.DefaultMaxFrame,
		},
		Timing: TimingConfig{
			Period: 4000,
			Tick:   time.Millisecond,
			Scale:  timing.DefaultScale,
			Poll:   time.Millisecond,
		},
		Topology: TopologyConfig(timing.Canonical7()),
		GPIO: GPIOConfig{
			Chip:   valve.DefaultChip,
			Groups: groupsConfig(valve.DefaultLines()),
		},
		MQTT: MQTTConfig{
			ClientID:  "valve-mixer",
			Heartbeat: 15 * time.Minute,
			Buffer:    100,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. The result is validated.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.Terminator == "" {
		c.Serial.Terminator = def.Serial.Terminator
	}
	if c.Serial.MaxFrame == 0 {
		c.Serial.MaxFrame = def.Serial.MaxFrame
	}

	if c.Timing.Period == 0 {
		c.Timing.Period = def.Timing.Period
	}
	if c.Timing.Tick == 0 {
		c.Timing.Tick = def.Timing.Tick
	}
	if c.Timing.Scale == 0 {
		c.Timing.Scale = def.Timing.Scale
	}
	if c.Timing.Poll == 0 {
		c.Timing.Poll = def.Timing.Poll
	}

	if len(c.Topology) == 0 {
		c.Topology = def.Topology
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if len(c.GPIO.Groups) == 0 {
		c.GPIO.Groups = def.GPIO.Groups
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Buffer == 0 {
		c.MQTT.Buffer = def.MQTT.Buffer
	}
}

// Validate checks the configuration can be turned into a running daemon.
func (c *Config) Validate() error {
	if len(c.Serial.Terminator) != 1 {
		return fmt.Errorf("serial.terminator must be one byte, got %q", c.Serial.Terminator)
	}
	if c.Serial.Terminator == "," {
		return errors.New("serial.terminator cannot be the field delimiter ','")
	}
	if c.Serial.MaxFrame < 2 {
		return fmt.Errorf("serial.max_frame must be at least 2, got %d", c.Serial.MaxFrame)
	}
	if c.Timing.Tick <= 0 {
		return fmt.Errorf("timing.tick must be positive, got %v", c.Timing.Tick)
	}
	if c.Timing.Poll <= 0 {
		return fmt.Errorf("timing.poll must be positive, got %v", c.Timing.Poll)
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat)
	}

	topo, err := c.TopologyDescriptor()
	if err != nil {
		return err
	}
	lines, err := c.LineMap()
	if err != nil {
		return err
	}
	layout, err := valve.NewLayout(lines)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	if err := layout.Covers(topo); err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	return nil
}

// TerminatorByte returns the frame terminator.
func (c *Config) TerminatorByte() byte {
	if c.Serial.Terminator == "" {
		return protocol.DefaultTerminator
	}
	return c.Serial.Terminator[0]
}

// TopologyDescriptor builds and validates the scheduler topology.
func (c *Config) TopologyDescriptor() (timing.Topology, error) {
	topo := timing.Topology{Scale: c.Timing.Scale}
	for i, ch := range c.Topology {
		if len(ch.Solenoid) != 1 {
			return timing.Topology{}, fmt.Errorf("topology[%d]: solenoid must be one character, got %q", i, ch.Solenoid)
		}
		group, err := timing.ParseGroup(ch.Group)
		if err != nil {
			return timing.Topology{}, fmt.Errorf("topology[%d]: %w", i, err)
		}
		topo.Channels = append(topo.Channels, timing.ChannelSpec{
			Name: ch.Name,
			Solenoid: timing.Solenoid{
				ID:    ch.Solenoid[0],
				Mask:  ch.Mask,
				Group: group,
			},
		})
	}
	if err := topo.Validate(); err != nil {
		return timing.Topology{}, err
	}
	return topo, nil
}

// LineMap converts the GPIO group table into a valve.LineMap.
func (c *Config) LineMap() (valve.LineMap, error) {
	lines := make(valve.LineMap, len(c.GPIO.Groups))
	for name, bits := range c.GPIO.Groups {
		group, err := timing.ParseGroup(name)
		if err != nil {
			return nil, fmt.Errorf("gpio.groups: %w", err)
		}
		m := make(map[uint8]int, len(bits))
		for bit, offset := range bits {
			m[bit] = offset
		}
		lines[group] = m
	}
	return lines, nil
}

// TopologyConfig renders a topology as channel entries.
func TopologyConfig(topo timing.Topology) []ChannelConfig {
	out := make([]ChannelConfig, len(topo.Channels))
	for i, ch := range topo.Channels {
		out[i] = ChannelConfig{
			Name:     ch.Name,
			Solenoid: string(rune(ch.Solenoid.ID)),
			Group:    ch.Solenoid.Group.String(),
			Mask:     ch.Solenoid.Mask,
		}
	}
	return out
}

func groupsConfig(lines valve.LineMap) map[string]map[uint8]int {
	out := make(map[string]map[uint8]int, len(lines))
	for group, bits := range lines {
		m := make(map[uint8]int, len(bits))
		for bit, offset := range bits {
			m[bit] = offset
		}
		out[group.String()] = m
	}
	return out
}
