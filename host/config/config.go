// Package config holds the monitor's host-side settings: the serial device
// to dial and a library of named channel presets that can be applied with
// one command.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"gopit/protocol"
)

// Preset is one named channel setup.
type Preset struct {
	// Channel the preset programs.
	Channel uint8 `json:"channel"`

	// Mode selects the unit of Arg: "value" (bus cycles), "period_us"
	// (microseconds) or "frequency_millihz".
	Mode string `json:"mode"`

	// Arg in the unit named by Mode.
	Arg uint32 `json:"arg"`

	// Start arms the channel after programming it.
	Start bool `json:"start,omitempty"`
}

// Command translates the preset into its wire command.
func (p Preset) Command() (protocol.Command, error) {
	cmd := protocol.Command{Channel: p.Channel, Arg: p.Arg}
	switch p.Mode {
	case "value":
		cmd.Op = protocol.CmdSetValue
	case "period_us":
		cmd.Op = protocol.CmdSetPeriodUS
	case "frequency_millihz":
		cmd.Op = protocol.CmdSetFreqMilliHz
	default:
		return protocol.Command{}, errors.Errorf("unknown preset mode %q", p.Mode)
	}
	return cmd, nil
}

// Config is the host configuration file.
type Config struct {
	// Device is the serial port to dial.
	Device string `json:"device"`

	// Baud for UART bridges; USB CDC links ignore it.
	Baud int `json:"baud"`

	// Presets by name.
	Presets map[string]Preset `json:"presets,omitempty"`
}

// Load reads a config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes config JSON and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config back, indented for hand editing.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Device == "" {
		cfg.Device = "/dev/ttyACM0"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
}

// Default returns a runnable configuration with a few example presets.
func Default() *Config {
	return &Config{
		Device: "/dev/ttyACM0",
		Baud:   115200,
		Presets: map[string]Preset{
			"blink": {
				Channel: 0,
				Mode:    "frequency_millihz",
				Arg:     2000, // 2 Hz
				Start:   true,
			},
			"tick": {
				Channel: 1,
				Mode:    "period_us",
				Arg:     1000000,
				Start:   true,
			},
			"window": {
				Channel: 2,
				Mode:    "value",
				Arg:     60000000,
			},
		},
	}
}
