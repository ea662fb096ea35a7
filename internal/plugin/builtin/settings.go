package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is a loosely typed settings map as decoded from YAML or JSON.
type Settings map[string]any

// merge returns base overlaid with over. Neither input is modified.
func merge(base, over map[string]any) Settings {
	out := make(Settings, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// String returns the value at key as a string, or def when absent.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Int returns the value at key as an int, or def when absent or invalid.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the value at key as a bool, or def when absent or invalid.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Strings returns a list value. A string is split on commas.
func (s Settings) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// Duration parses a Go duration string; numbers are seconds.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}
