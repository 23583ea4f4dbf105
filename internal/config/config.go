package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile names accepted in motion.profile.
const (
	ProfileTrapezoid = "trapezoid"
	ProfileConstant  = "constant"
)

// StepperConfig holds the wiring of the four coil lines.
type StepperConfig struct {
	Pins []int `yaml:"pins"` // four coil pins (BCM), in driver board order
}

// MotionConfig holds the motion profile parameters.
type MotionConfig struct {
	MaxSpeed     float64 `yaml:"max_speed"`    // steps/s ceiling
	Acceleration float64 `yaml:"acceleration"` // steps/s² ramp rate
	Profile      string  `yaml:"profile"`      // "trapezoid" (default) or "constant"
	DwellMs      int     `yaml:"dwell_ms"`     // pause at target; 0 = 3000
}

// SerialConfig describes the command link with the host script.
type SerialConfig struct {
	Device        string `yaml:"device"`          // e.g. /dev/ttyUSB0; empty = in-memory mock
	Baud          int    `yaml:"baud"`            // 0 = 9600
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // 0 = 100
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Stepper  StepperConfig  `yaml:"stepper"`
	Motion   MotionConfig   `yaml:"motion"`
	Serial   SerialConfig   `yaml:"serial"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration. Motion
// parameters fail fast: zero or negative speed or acceleration would
// silently produce no motion (or an undefined ramp) at runtime, so
// they are rejected here instead.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if len(cfg.Stepper.Pins) != 4 {
		return nil, fmt.Errorf("stepper.pins must list exactly 4 coil pins, got %d", len(cfg.Stepper.Pins))
	}
	seen := make(map[int]bool)
	for _, pin := range cfg.Stepper.Pins {
		if pin <= 0 {
			return nil, fmt.Errorf("stepper.pins entries must be > 0, got %d", pin)
		}
		if seen[pin] {
			return nil, fmt.Errorf("stepper.pins lists pin %d twice", pin)
		}
		seen[pin] = true
	}

	if cfg.Motion.MaxSpeed <= 0 {
		return nil, fmt.Errorf("motion.max_speed must be > 0, got %g", cfg.Motion.MaxSpeed)
	}
	if cfg.Motion.Acceleration <= 0 {
		return nil, fmt.Errorf("motion.acceleration must be > 0, got %g", cfg.Motion.Acceleration)
	}
	switch cfg.Motion.Profile {
	case "":
		cfg.Motion.Profile = ProfileTrapezoid
	case ProfileTrapezoid, ProfileConstant:
	default:
		return nil, fmt.Errorf("motion.profile must be %q or %q, got %q",
			ProfileTrapezoid, ProfileConstant, cfg.Motion.Profile)
	}
	if cfg.Motion.DwellMs < 0 {
		return nil, fmt.Errorf("motion.dwell_ms must be >= 0, got %d", cfg.Motion.DwellMs)
	}
	if cfg.Motion.DwellMs == 0 {
		cfg.Motion.DwellMs = 3000
	}

	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = 9600 // matches the host script's open
	}
	if cfg.Serial.ReadTimeoutMs <= 0 {
		cfg.Serial.ReadTimeoutMs = 100
	}

	return &cfg, nil
}

// Dwell returns the pause between the outbound and return legs.
func (c *Config) Dwell() time.Duration {
	return time.Duration(c.Motion.DwellMs) * time.Millisecond
}

// ReadTimeout returns the serial polling timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// ValidateConfigPath restricts the config flag to YAML files inside a
// configs/ directory, refusing traversal outside it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	dir := filepath.Base(filepath.Dir(abs))
	if dir != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("config path must not traverse directories: %s", path)
	}
	return nil
}
