package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Host validation
	validModes := []string{"sequential", "concurrent"}
	if cfg.Host.DispatchMode != "" && !slices.Contains(validModes, cfg.Host.DispatchMode) {
		add("host.dispatchMode", "must be one of %v, got %q", validModes, cfg.Host.DispatchMode)
	}
	if cfg.Host.DrainTimeout < 0 {
		add("host.drainTimeout", "must not be negative, got %s", cfg.Host.DrainTimeout)
	}
	if cfg.Host.ProcessTimeout < 0 {
		add("host.processTimeout", "must not be negative, got %s", cfg.Host.ProcessTimeout)
	}
	if cfg.Host.UnloadTimeout < 0 {
		add("host.unloadTimeout", "must not be negative, got %s", cfg.Host.UnloadTimeout)
	}
	if cfg.Host.QueueSize < 0 {
		add("host.queueSize", "must not be negative, got %d", cfg.Host.QueueSize)
	}
	if strings.ContainsAny(cfg.Host.Suffix, `/\.`) {
		add("host.suffix", "must not contain path separators or dots, got %q", cfg.Host.Suffix)
	}
	for i, dir := range cfg.Host.PluginDirs {
		if strings.TrimSpace(dir) == "" {
			add(fmt.Sprintf("host.pluginDirs[%d]", i), "must not be empty")
		}
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}

	validAuthModes := []string{"none", "token", "password"}
	switch {
	case cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode):
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	case cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Token == "" && os.Getenv("EVENTHOST_GATEWAY_TOKEN") == "":
		add("gateway.auth.token", "required when auth mode is token")
	case cfg.Gateway.Auth.Mode == "password" && cfg.Gateway.Auth.Password == "" && os.Getenv("EVENTHOST_GATEWAY_PASSWORD") == "":
		add("gateway.auth.password", "required when auth mode is password")
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}
	if cfg.Gateway.MaxBodyBytes < 0 {
		add("gateway.maxBodyBytes", "must not be negative, got %d", cfg.Gateway.MaxBodyBytes)
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Plugin settings validation
	for name := range cfg.Plugins {
		if name == "" || strings.ContainsAny(name, `/\`) {
			add("plugins."+name, "invalid plugin name %q", name)
		}
	}

	return issues
}
