package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Port(t *testing.T) {
	for _, port := range []int{0, 8080, 65535} {
		cfg := Defaults()
		cfg.Gateway.Port = port
		assert.Empty(t, Validate(&cfg), "port %d should be valid", port)
	}
	for _, port := range []int{-1, 70000} {
		cfg := Defaults()
		cfg.Gateway.Port = port
		issues := Validate(&cfg)
		require.Len(t, issues, 1)
		assert.Equal(t, "gateway.port", issues[0].Path)
	}
}

func TestValidate_SingleField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"dispatch mode", func(c *Config) { c.Host.DispatchMode = "parallel" }, "host.dispatchMode"},
		{"negative drain", func(c *Config) { c.Host.DrainTimeout = -time.Second }, "host.drainTimeout"},
		{"negative process", func(c *Config) { c.Host.ProcessTimeout = -time.Second }, "host.processTimeout"},
		{"negative unload", func(c *Config) { c.Host.UnloadTimeout = -time.Second }, "host.unloadTimeout"},
		{"negative queue", func(c *Config) { c.Host.QueueSize = -1 }, "host.queueSize"},
		{"suffix with dot", func(c *Config) { c.Host.Suffix = "_plugin.lua" }, "host.suffix"},
		{"suffix with slash", func(c *Config) { c.Host.Suffix = "a/b" }, "host.suffix"},
		{"blank plugin dir", func(c *Config) { c.Host.PluginDirs = []string{"/ok", " "} }, "host.pluginDirs[1]"},
		{"bind", func(c *Config) { c.Gateway.Bind = "everywhere" }, "gateway.bind"},
		{"custom bind without host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"token missing", func(c *Config) { c.Gateway.Auth.Mode = "token" }, "gateway.auth.token"},
		{"password missing", func(c *Config) { c.Gateway.Auth.Mode = "password" }, "gateway.auth.password"},
		{"tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"negative body limit", func(c *Config) { c.Gateway.MaxBodyBytes = -1 }, "gateway.maxBodyBytes"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "fancy" }, "logging.consoleStyle"},
		{"plugin name", func(c *Config) { c.Plugins = map[string]map[string]any{"a/b": {}} }, "plugins.a/b"},
	}

	t.Setenv("EVENTHOST_GATEWAY_TOKEN", "")
	t.Setenv("EVENTHOST_GATEWAY_PASSWORD", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tt.path, issues[0].Path)
		})
	}
}

func TestValidate_AcceptedValues(t *testing.T) {
	for _, mode := range []string{"sequential", "concurrent", ""} {
		cfg := Defaults()
		cfg.Host.DispatchMode = mode
		assert.Empty(t, Validate(&cfg), "dispatch mode %q", mode)
	}
	for _, bind := range []string{"loopback", "lan", ""} {
		cfg := Defaults()
		cfg.Gateway.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q", bind)
	}
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q", level)
	}

	cfg := Defaults()
	cfg.Gateway.Bind = "custom"
	cfg.Gateway.CustomBindHost = "10.0.0.5"
	cfg.Gateway.Auth = GatewayAuth{Mode: "token", Token: "t"}
	cfg.Gateway.TLS = GatewayTLS{Enabled: true, CertPath: "c.pem", KeyPath: "k.pem"}
	cfg.Host.Suffix = "_ext"
	cfg.Plugins = map[string]map[string]any{"recorder": {"store": "memory"}}
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = -1
	cfg.Logging.Level = "loud"
	cfg.Host.DispatchMode = "random"
	assert.Len(t, Validate(&cfg), 3)
}

func TestValidate_TokenFromEnv(t *testing.T) {
	t.Setenv("EVENTHOST_GATEWAY_TOKEN", "from-env")
	cfg := Defaults()
	cfg.Gateway.Auth.Mode = "token"
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "host.queueSize", Message: "must not be negative, got -1"}
	assert.Equal(t, "host.queueSize: must not be negative, got -1", issue.String())
}
