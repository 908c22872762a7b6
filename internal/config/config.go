package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// DBPath selects the sqlite-backed room store. Empty keeps rooms in memory.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// RoomTTL is how long an abandoned room may live before the reaper closes
	// it. Zero disables reaping.
	RoomTTL       time.Duration `mapstructure:"room_ttl" yaml:"room_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DBPath:            "",
		RoomTTL:           0,
		SweepInterval:     time.Minute,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DBPath != "" {
		c.DBPath = other.DBPath
	}
	if other.RoomTTL != 0 {
		c.RoomTTL = other.RoomTTL
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
}
