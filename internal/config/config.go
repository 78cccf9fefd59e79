// Package config loads the daemon configuration from a YAML file, falling
// back to built-in defaults for anything missing. Command-line flags
// override whatever the file says.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/phase-dimmer/internal/engine"
	"github.com/sweeney/phase-dimmer/internal/gpio"
)

// Config represents the daemon configuration.
type Config struct {
	Broker   string        `yaml:"broker"`
	HTTPAddr string        `yaml:"http_addr"`
	Poll     time.Duration `yaml:"poll"`
	// Heartbeat is the periodic status publish interval. An omitted key
	// keeps the default; an explicit zero disables the heartbeat.
	Heartbeat          time.Duration `yaml:"heartbeat"`
	CalibrationTimeout time.Duration `yaml:"calibration_timeout"`
	Pins               PinsConfig    `yaml:"pins"`
	ADC                ADCConfig     `yaml:"adc"`
	Engine             EngineConfig  `yaml:"engine"`
}

// PinsConfig contains the BCM pin assignments.
type PinsConfig struct {
	Sense int `yaml:"sense"`
	Gate  int `yaml:"gate"`
	// Diag < 0 disables the diagnostic indicator.
	Diag int `yaml:"diag"`
}

// ADCConfig locates the dimming input on the Linux IIO bus.
type ADCConfig struct {
	Device  int `yaml:"device"`
	Channel int `yaml:"channel"`
}

// EngineConfig mirrors engine.Params for the YAML file. Zero fields take
// the engine defaults.
type EngineConfig struct {
	TickMicros            int    `yaml:"tick_us"`
	OffsetTicks           uint32 `yaml:"offset_ticks"`
	TriggerPulseTicks     uint32 `yaml:"trigger_pulse_ticks"`
	SafetyTimeoutTicks    uint32 `yaml:"safety_timeout_ticks"`
	MinZCPeriodTicks      uint32 `yaml:"min_zc_period_ticks"`
	OffLevel              uint32 `yaml:"off_level"`
	NominalHalfCycleTicks uint32 `yaml:"nominal_half_cycle_ticks"`
	CalibrationSamples    int    `yaml:"calibration_samples"`
}

// Default returns a configuration with sensible values: 60 Hz reference
// timing, the default Pi pin assignments, and a local broker.
func Default() *Config {
	return &Config{
		Broker:             "tcp://127.0.0.1:1883",
		HTTPAddr:           ":8080",
		Poll:               50 * time.Millisecond,
		Heartbeat:          15 * time.Minute,
		CalibrationTimeout: 0, // block until calibrated
		Pins: PinsConfig{
			Sense: gpio.DefaultPinSense,
			Gate:  gpio.DefaultPinGate,
			Diag:  gpio.DefaultPinDiag,
		},
		ADC: ADCConfig{
			Device:  0,
			Channel: 0,
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
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// EngineParams merges the file's engine section over the built-in defaults
// and validates the result.
func (c *Config) EngineParams() (engine.Params, error) {
	p := engine.DefaultParams()

	e := c.Engine
	if e.TickMicros != 0 {
		p.TickMicros = e.TickMicros
	}
	if e.OffsetTicks != 0 {
		p.OffsetTicks = e.OffsetTicks
	}
	if e.TriggerPulseTicks != 0 {
		p.TriggerPulseTicks = e.TriggerPulseTicks
	}
	if e.SafetyTimeoutTicks != 0 {
		p.SafetyTimeoutTicks = e.SafetyTimeoutTicks
	}
	if e.MinZCPeriodTicks != 0 {
		p.MinZCPeriodTicks = e.MinZCPeriodTicks
	}
	if e.OffLevel != 0 {
		p.OffLevel = e.OffLevel
	}
	if e.NominalHalfCycleTicks != 0 {
		p.NominalHalfCycleTicks = e.NominalHalfCycleTicks
	}
	if e.CalibrationSamples != 0 {
		p.CalibrationSamples = e.CalibrationSamples
	}

	if err := p.Validate(); err != nil {
		return engine.Params{}, err
	}
	return p, nil
}

// ensureDefaults fills required fields that the file left empty.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Broker == "" {
		c.Broker = def.Broker
	}
	if c.Poll == 0 {
		c.Poll = def.Poll
	}
	// Heartbeat is not backfilled: zero is the documented way to disable
	// it, and an omitted key never reaches zero because Load unmarshals
	// over the defaults.
	if c.Pins.Sense == 0 && c.Pins.Gate == 0 {
		c.Pins = def.Pins
	}
}
