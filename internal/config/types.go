package config

import "time"

// Config is the root configuration for eventhost.
type Config struct {
	Host    HostConfig                `yaml:"host,omitempty"`
	Gateway GatewayConfig             `yaml:"gateway,omitempty"`
	Logging LoggingConfig             `yaml:"logging,omitempty"`
	Plugins map[string]map[string]any `yaml:"plugins,omitempty"` // per-plugin settings keyed by plugin name
}

// HostConfig controls plugin discovery and event dispatch.
type HostConfig struct {
	PluginDirs     []string      `yaml:"pluginDirs,omitempty"`
	Suffix         string        `yaml:"suffix,omitempty"`
	DispatchMode   string        `yaml:"dispatchMode,omitempty"` // "sequential" | "concurrent"
	DrainTimeout   time.Duration `yaml:"drainTimeout,omitempty"`
	ProcessTimeout time.Duration `yaml:"processTimeout,omitempty"` // 0 = unbounded
	UnloadTimeout  time.Duration `yaml:"unloadTimeout,omitempty"`
	QueueSize      int           `yaml:"queueSize,omitempty"`
	AllowEmpty     *bool         `yaml:"allowEmpty,omitempty"` // start with zero plugins; defaults to true
}

// AllowsEmpty reports whether the host may start with no plugins loaded.
func (h HostConfig) AllowsEmpty() bool {
	if h.AllowEmpty == nil {
		return true
	}
	return *h.AllowEmpty
}

// GatewayConfig controls the HTTP/WebSocket listener.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	MaxBodyBytes   int64       `yaml:"maxBodyBytes,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "none" | "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
