// Package config loads server configuration from an optional YAML file,
// with sane defaults for running locally.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "5m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all server settings.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// RedisAddr, when set, backs the room journal with Redis instead of
	// process memory.
	RedisAddr string `yaml:"redis_addr"`

	// JournalSize is the per-room journal retention cap.
	JournalSize int `yaml:"journal_size"`

	// ReplayLimit is how many journal entries are replayed to a client
	// right after a successful join.
	ReplayLimit int `yaml:"replay_limit"`

	// MaxConns caps concurrent websocket connections; 0 means unlimited.
	MaxConns int `yaml:"max_conns"`

	// IdleTimeout closes connections with no inbound traffic (heartbeats
	// included) for this long; 0 disables reaping.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// RoomsPerMinute caps room creation per client IP.
	RoomsPerMinute int `yaml:"rooms_per_minute"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		JournalSize:    200,
		ReplayLimit:    50,
		IdleTimeout:    Duration(10 * time.Minute),
		RoomsPerMinute: 10,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
