package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default values shared by Defaults and applyDefaults.
const (
	DefaultPort          = 5000
	DefaultSuffix        = "_plugin"
	DefaultDispatchMode  = "sequential"
	DefaultDrainTimeout  = 10 * time.Second
	DefaultUnloadTimeout = 5 * time.Second
	DefaultQueueSize     = 64
	DefaultMaxBodyBytes  = 1 << 20
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
