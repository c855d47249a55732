package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// DatabasePath points at the memo database owned by the surrounding
	// application. The sync server only reads sharing records from it.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	// TokenSecret verifies optional identity tokens on /ws. Empty disables
	// token verification; clients then self-report identity at join time.
	TokenSecret string `mapstructure:"token_secret" yaml:"token_secret"`

	// EventsPerSecond caps inbound frames per connection. Zero disables
	// throttling.
	EventsPerSecond int `mapstructure:"events_per_second" yaml:"events_per_second"`
	EventBurst      int `mapstructure:"event_burst" yaml:"event_burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "memos.db",
		LogLevel:          "info",
		EventsPerSecond:   60,
		EventBurst:        120,
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.TokenSecret != "" {
		c.TokenSecret = other.TokenSecret
	}
	if other.EventsPerSecond != 0 {
		c.EventsPerSecond = other.EventsPerSecond
	}
	if other.EventBurst != 0 {
		c.EventBurst = other.EventBurst
	}
}
