// Package config loads the gpio-sensor daemon configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "/etc/gpio-sensor.yaml"

// Config represents the daemon configuration.
type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	Control ControlConfig `yaml:"control"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
}

// GPIOConfig selects the pin provider and the six input pins.
type GPIOConfig struct {
	Backend   string      `yaml:"backend"`              // cdev, rpio, periph, sim
	Chip      string      `yaml:"chip"`                 // cdev only
	Bias      string      `yaml:"bias"`                 // as-is, pull-up, pull-down, disabled
	Pins      []int       `yaml:"pins"`                 // sensor 1 = first three, sensor 2 = last three
	SimLevels map[int]int `yaml:"sim_levels,omitempty"` // sim only
}

// ControlConfig configures the control file.
type ControlConfig struct {
	Name            string `yaml:"name"`
	Capacity        int    `yaml:"capacity"` // 0 = OS page size
	DefaultSelector string `yaml:"default_selector"`
	Delivery        string `yaml:"delivery"` // echo or full
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// MQTTConfig configures the MQTT surface.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"` // empty disables
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Buffer      int           `yaml:"buffer"`    // messages kept while disconnected, 0 disables
	Heartbeat   time.Duration `yaml:"heartbeat"` // 0 disables
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns a configuration with sensible values.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Backend: gpio.BackendCdev,
			Chip:    "gpiochip0",
			Bias:    string(gpio.BiasAsIs),
			Pins:    []int{gpio.Pin1, gpio.Pin2, gpio.Pin3, gpio.Pin4, gpio.Pin5, gpio.Pin6},
		},
		Control: ControlConfig{
			Name:            controlfile.DefaultName,
			DefaultSelector: controlfile.DefaultSelector,
			Delivery:        string(controlfile.DeliverEcho),
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		MQTT: MQTTConfig{
			ClientID:    "gpio-sensor",
			TopicPrefix: "gpio/sensor",
			Buffer:      100,
			Heartbeat:   15 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path from fsys on top of the defaults. A missing file yields
// the defaults.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ensureDefaults()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(fsys afero.Fs, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) ensureDefaults() {
	def := Default()
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = def.GPIO.Backend
	}
	if c.GPIO.Bias == "" {
		c.GPIO.Bias = def.GPIO.Bias
	}
	if len(c.GPIO.Pins) == 0 {
		c.GPIO.Pins = def.GPIO.Pins
	}
	if c.Control.Name == "" {
		c.Control.Name = def.Control.Name
	}
	if c.Control.DefaultSelector == "" {
		c.Control.DefaultSelector = def.Control.DefaultSelector
	}
	if c.Control.Delivery == "" {
		c.Control.Delivery = def.Control.Delivery
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Environment variables that override file values.
const (
	EnvBackend  = "GPIO_SENSOR_BACKEND"
	EnvChip     = "GPIO_SENSOR_CHIP"
	EnvHTTP     = "GPIO_SENSOR_HTTP"
	EnvBroker   = "GPIO_SENSOR_BROKER"
	EnvLogLevel = "GPIO_SENSOR_LOG_LEVEL"
)

// ApplyEnv overrides fields from the environment. Unset variables are ignored.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	set(EnvBackend, &c.GPIO.Backend)
	set(EnvChip, &c.GPIO.Chip)
	set(EnvHTTP, &c.HTTP.Addr)
	set(EnvBroker, &c.MQTT.Broker)
	set(EnvLogLevel, &c.Log.Level)
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.GPIO.Backend {
	case gpio.BackendCdev, gpio.BackendRpio, gpio.BackendPeriph, gpio.BackendSim:
	default:
		return fmt.Errorf("gpio.backend: unknown backend %q", c.GPIO.Backend)
	}
	if !gpio.Bias(c.GPIO.Bias).Valid() {
		return fmt.Errorf("gpio.bias: unknown bias %q", c.GPIO.Bias)
	}
	if len(c.GPIO.Pins) != 6 {
		return fmt.Errorf("gpio.pins: need 6 pins, got %d", len(c.GPIO.Pins))
	}
	if !controlfile.Delivery(c.Control.Delivery).Valid() {
		return fmt.Errorf("control.delivery: unknown mode %q", c.Control.Delivery)
	}
	if c.Control.Capacity < 0 || c.Control.Capacity == 1 {
		return fmt.Errorf("control.capacity: %d is too small", c.Control.Capacity)
	}
	capacity := c.Control.Capacity
	if capacity == 0 {
		capacity = os.Getpagesize()
	}
	if len(c.Control.DefaultSelector) > capacity-1 {
		return fmt.Errorf("control.default_selector: longer than capacity %d", capacity)
	}
	if c.MQTT.Buffer < 0 {
		return fmt.Errorf("mqtt.buffer: must not be negative")
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat: must not be negative")
	}
	return nil
}

// Pins returns the six pins as an array.
func (c *Config) Pins() [6]int {
	var pins [6]int
	copy(pins[:], c.GPIO.Pins)
	return pins
}

// GPIOOptions converts the GPIO section for gpio.Open.
func (c *Config) GPIOOptions() gpio.Options {
	return gpio.Options{
		Backend:   c.GPIO.Backend,
		Chip:      c.GPIO.Chip,
		Bias:      gpio.Bias(c.GPIO.Bias),
		SimLevels: c.GPIO.SimLevels,
	}
}
