// Package config holds the beacon configuration: defaults, an optional YAML
// file, validation and the logger factory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Backends.
const (
	BackendBlueZ = "bluez"
	BackendHCI   = "hci"
)

// Advertising interval limits accepted by BLE controllers.
const (
	MinAdvInterval = 20 * time.Millisecond
	MaxAdvInterval = 10240 * time.Millisecond
)

// MaxNameLen is the longest local name that fits the advertising payload
// next to the flags and one 16-bit service UUID.
const MaxNameLen = 29

// Config holds beacon configuration. Zero values are filled from the
// default tags by Default.
type Config struct {
	DeviceName          string        `yaml:"device_name" default:"OMG"`
	Period              time.Duration `yaml:"period" default:"5ms"`
	AdvertisingInterval time.Duration `yaml:"advertising_interval" default:"100ms"`

	Backend   string `yaml:"backend" default:"bluez"`
	Adapter   string `yaml:"adapter" default:"hci0"`
	HCIDevice int    `yaml:"hci_device" default:"0"`

	I2CBus           string `yaml:"i2c_bus"`
	Distance1Address uint16 `yaml:"distance1_address" default:"41"` // 0x29
	Distance2Address uint16 `yaml:"distance2_address" default:"48"` // 0x30

	GPIOChip     string `yaml:"gpio_chip" default:"gpiochip0"`
	PinPIR1      int    `yaml:"pin_pir1" default:"14"`
	PinPIR2      int    `yaml:"pin_pir2" default:"15"`
	PinShutdown1 int    `yaml:"pin_shutdown1" default:"16"`
	PinShutdown2 int    `yaml:"pin_shutdown2" default:"17"`
	PinLED       int    `yaml:"pin_led" default:"-1"`

	LogLevel   string `yaml:"log_level" default:"info"`
	HTTPAddr   string `yaml:"http_addr"`
	MQTTBroker string `yaml:"mqtt_broker"`
	MQTTTopic  string `yaml:"mqtt_topic" default:"presence/beacon"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected. The result is not
// validated; callers apply overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if n := len(c.DeviceName); n == 0 || n > MaxNameLen {
		add("device_name must be 1..%d bytes, got %d", MaxNameLen, n)
	}
	if c.Period <= 0 {
		add("period must be positive, got %s", c.Period)
	}
	if c.AdvertisingInterval < MinAdvInterval || c.AdvertisingInterval > MaxAdvInterval {
		add("advertising_interval must be within [%s, %s], got %s", MinAdvInterval, MaxAdvInterval, c.AdvertisingInterval)
	}
	if c.Backend != BackendBlueZ && c.Backend != BackendHCI {
		add("backend must be %q or %q, got %q", BackendBlueZ, BackendHCI, c.Backend)
	}
	if c.HCIDevice < 0 {
		add("hci_device must not be negative, got %d", c.HCIDevice)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %v", err)
	}

	for _, a := range []struct {
		key  string
		addr uint16
	}{
		{"distance1_address", c.Distance1Address},
		{"distance2_address", c.Distance2Address},
	} {
		if a.addr == 0 || a.addr > 0x7F {
			add("%s must be a 7-bit I2C address, got 0x%X", a.key, a.addr)
		}
	}
	if c.Distance1Address == c.Distance2Address {
		add("distance1_address and distance2_address must differ, both 0x%X", c.Distance1Address)
	}

	pins := []struct {
		key string
		pin int
	}{
		{"pin_pir1", c.PinPIR1},
		{"pin_pir2", c.PinPIR2},
		{"pin_shutdown1", c.PinShutdown1},
		{"pin_shutdown2", c.PinShutdown2},
	}
	if c.PinLED >= 0 {
		pins = append(pins, struct {
			key string
			pin int
		}{"pin_led", c.PinLED})
	}
	used := make(map[int]string)
	for _, p := range pins {
		if p.pin < 0 {
			add("%s must not be negative, got %d", p.key, p.pin)
			continue
		}
		if other, ok := used[p.pin]; ok {
			add("%s and %s share line %d", other, p.key, p.pin)
			continue
		}
		used[p.pin] = p.key
	}

	if c.MQTTBroker != "" && c.MQTTTopic == "" {
		add("mqtt_topic must be set when mqtt_broker is")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// AppliedAdvInterval is the advertising interval the chosen backend actually
// programs. BlueZ selects its own, reported as 0.
func (c *Config) AppliedAdvInterval() time.Duration {
	if c.Backend == BackendHCI {
		return c.AdvertisingInterval
	}
	return 0
}

// Level returns the parsed log level, or info if it does not parse.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
