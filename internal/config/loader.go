package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields and plugin settings so passwords and tokens can be
// stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	for name, settings := range cfg.Plugins {
		for k, v := range settings {
			settings[k] = expandValue(v)
		}
		cfg.Plugins[name] = settings
	}
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvVars(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = expandValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = expandValue(inner)
		}
		return val
	default:
		return v
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file, creating its
// directory when needed.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Host.Suffix == "" {
		cfg.Host.Suffix = DefaultSuffix
	}
	if cfg.Host.DispatchMode == "" {
		cfg.Host.DispatchMode = DefaultDispatchMode
	}
	if cfg.Host.DrainTimeout == 0 {
		cfg.Host.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Host.UnloadTimeout == 0 {
		cfg.Host.UnloadTimeout = DefaultUnloadTimeout
	}
	if cfg.Host.QueueSize == 0 {
		cfg.Host.QueueSize = DefaultQueueSize
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads EVENTHOST_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVENTHOST_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("EVENTHOST_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("EVENTHOST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("EVENTHOST_PLUGIN_DIRS"); v != "" {
		cfg.Host.PluginDirs = filepath.SplitList(v)
	}
	if v := os.Getenv("EVENTHOST_DISPATCH_MODE"); v != "" {
		cfg.Host.DispatchMode = strings.ToLower(v)
	}
	if v := os.Getenv("EVENTHOST_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Host.DrainTimeout = d
		}
	}
}
