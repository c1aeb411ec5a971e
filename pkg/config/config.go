package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gosonar/pkg/rtc"
	"github.com/itohio/gosonar/pkg/sonar"
)

// DefaultFilename is the configuration file used when none is given.
const DefaultFilename = "config.yaml"

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Clock   ClockConfig   `yaml:"clock"`
	Display DisplayConfig `yaml:"display"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SensorConfig contains the measurement cycle timings.
type SensorConfig struct {
	Deadline     time.Duration `yaml:"deadline"`       // Echo deadline per cycle
	TriggerWidth time.Duration `yaml:"trigger_width"`  // Trigger pulse width
	Interval     time.Duration `yaml:"interval"`       // Delay between cycles
	PollTimeout  time.Duration `yaml:"poll_timeout"`   // Bounded wait for a command
	SpeedOfSound float64       `yaml:"speed_of_sound"` // cm/µs
}

// ClockConfig contains the wall clock seed.
type ClockConfig struct {
	Epoch time.Time `yaml:"epoch"`
}

// DisplayConfig contains host-side presentation parameters.
type DisplayConfig struct {
	WindowSeconds  float64 `yaml:"window_seconds"`  // History shown in the monitor
	AverageSamples int     `yaml:"average_samples"` // Moving average length (0 = disabled)
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	Distance  float64       `yaml:"distance"`   // Target distance (cm)
	Noise     float64       `yaml:"noise"`      // Amplitude of distance wobble (cm)
	DropRate  float64       `yaml:"drop_rate"`  // Fraction of echoes lost (0..1)
	EchoDelay time.Duration `yaml:"echo_delay"` // Trigger to echo rising edge
	Seed      uint64        `yaml:"seed"`       // Random seed for drops
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	settings := sonar.DefaultSettings()

	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0", // Pico USB CDC on Linux, "COMx" on Windows
			BaudRate: 115200,
		},
		Sensor: SensorConfig{
			Deadline:     settings.Deadline,
			TriggerWidth: settings.TriggerWidth,
			Interval:     settings.Interval,
			PollTimeout:  settings.PollTimeout,
			SpeedOfSound: float64(settings.SpeedOfSound),
		},
		Clock: ClockConfig{
			Epoch: rtc.DefaultEpoch,
		},
		Display: DisplayConfig{
			WindowSeconds:  60,
			AverageSamples: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Distance:  50.0,
			Noise:     0.5,
			DropRate:  0.05,
			EchoDelay: 100 * time.Microsecond,
			Seed:      1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
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

// Settings converts the sensor section into measurement cycle settings.
func (c *Config) Settings() sonar.Settings {
	return sonar.Settings{
		Deadline:     c.Sensor.Deadline,
		TriggerWidth: c.Sensor.TriggerWidth,
		Interval:     c.Sensor.Interval,
		PollTimeout:  c.Sensor.PollTimeout,
		SpeedOfSound: float32(c.Sensor.SpeedOfSound),
	}
}

// Window returns the history window shown by the monitor.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Display.WindowSeconds * float64(time.Second))
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	if c.Mock.DropRate < 0 || c.Mock.DropRate > 1 {
		return fmt.Errorf("mock: drop rate must be within [0, 1], got %v", c.Mock.DropRate)
	}
	if c.Mock.Distance < 0 {
		return fmt.Errorf("mock: distance must not be negative, got %v", c.Mock.Distance)
	}
	if c.Display.AverageSamples < 0 {
		return fmt.Errorf("display: average samples must not be negative, got %d", c.Display.AverageSamples)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sensor.Deadline == 0 {
		c.Sensor.Deadline = def.Sensor.Deadline
	}
	if c.Sensor.TriggerWidth == 0 {
		c.Sensor.TriggerWidth = def.Sensor.TriggerWidth
	}
	if c.Sensor.Interval == 0 {
		c.Sensor.Interval = def.Sensor.Interval
	}
	if c.Sensor.PollTimeout == 0 {
		c.Sensor.PollTimeout = def.Sensor.PollTimeout
	}
	if c.Sensor.SpeedOfSound == 0 {
		c.Sensor.SpeedOfSound = def.Sensor.SpeedOfSound
	}

	if c.Clock.Epoch.IsZero() {
		c.Clock.Epoch = def.Clock.Epoch
	}

	if c.Display.WindowSeconds == 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.EchoDelay == 0 {
		c.Mock.EchoDelay = def.Mock.EchoDelay
	}
}
