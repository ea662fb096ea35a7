package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ParseConfigPath ---

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "host", []string{"host"}, false},
		{"two segments", "host.dispatchMode", []string{"host", "dispatchMode"}, false},
		{"plugin setting", "plugins.recorder.path", []string{"plugins", "recorder", "path"}, false},
		{"empty", "", nil, true},
		{"empty segment", "host..suffix", nil, true},
		{"leading dot", ".host", nil, true},
		{"trailing dot", "plugins.", nil, true},
		{"blocked __proto__", "plugins.__proto__.x", nil, true},
		{"blocked prototype", "prototype.x", nil, true},
		{"blocked constructor", "constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// --- GetValueAtPath / SetValueAtPath / UnsetValueAtPath ---

func pluginTree() map[string]any {
	return map[string]any{
		"host": map[string]any{
			"queueSize": 64,
		},
		"plugins": map[string]any{
			"recorder": map[string]any{
				"store": "sqlite",
				"path":  "events.db",
			},
		},
		"version": "1",
	}
}

func TestGetValueAtPath(t *testing.T) {
	root := pluginTree()

	tests := []struct {
		name string
		path []string
		want any
		ok   bool
	}{
		{"nested value", []string{"host", "queueSize"}, 64, true},
		{"plugin setting", []string{"plugins", "recorder", "store"}, "sqlite", true},
		{"whole section", []string{"host"}, map[string]any{"queueSize": 64}, true},
		{"top level", []string{"version"}, "1", true},
		{"missing key", []string{"gateway"}, nil, false},
		{"missing nested", []string{"plugins", "console"}, nil, false},
		{"non-map intermediate", []string{"version", "major"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := GetValueAtPath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, val)
			}
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	root := pluginTree()

	SetValueAtPath(root, []string{"host", "queueSize"}, 128)
	SetValueAtPath(root, []string{"plugins", "irc", "nick"}, "evbot")
	SetValueAtPath(root, []string{"version", "major"}, 2)
	SetValueAtPath(root, []string{"logging"}, "debug")

	val, ok := GetValueAtPath(root, []string{"host", "queueSize"})
	assert.True(t, ok)
	assert.Equal(t, 128, val)

	val, ok = GetValueAtPath(root, []string{"plugins", "irc", "nick"})
	assert.True(t, ok)
	assert.Equal(t, "evbot", val)

	// non-map intermediates are replaced
	val, ok = GetValueAtPath(root, []string{"version", "major"})
	assert.True(t, ok)
	assert.Equal(t, 2, val)

	assert.Equal(t, "debug", root["logging"])

	// siblings survive
	val, ok = GetValueAtPath(root, []string{"plugins", "recorder", "path"})
	assert.True(t, ok)
	assert.Equal(t, "events.db", val)
}

func TestUnsetValueAtPath(t *testing.T) {
	tests := []struct {
		name string
		path []string
		want bool
	}{
		{"existing leaf", []string{"plugins", "recorder", "path"}, true},
		{"existing section", []string{"host"}, true},
		{"missing leaf", []string{"plugins", "recorder", "retention"}, false},
		{"missing intermediate", []string{"gateway", "auth", "token"}, false},
		{"non-map intermediate", []string{"version", "major"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := pluginTree()
			assert.Equal(t, tt.want, UnsetValueAtPath(root, tt.path))
			if tt.want {
				_, found := GetValueAtPath(root, tt.path)
				assert.False(t, found)
			}
		})
	}

	root := pluginTree()
	require.True(t, UnsetValueAtPath(root, []string{"plugins", "recorder", "path"}))
	val, ok := GetValueAtPath(root, []string{"plugins", "recorder", "store"})
	assert.True(t, ok)
	assert.Equal(t, "sqlite", val)
}

// --- ResolvePaths tests ---

func TestResolvePaths_Default(t *testing.T) {
	t.Setenv("EVENTHOST_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".eventhost")
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(base, "plugins"), paths.Plugins)
	assert.Equal(t, filepath.Join(base, "logs"), paths.Logs)
	assert.Equal(t, filepath.Join(base, "data"), paths.Data)
}

func TestResolvePaths_CustomHome(t *testing.T) {
	t.Setenv("EVENTHOST_HOME", "/tmp/evh")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/evh", paths.Base)
	assert.Equal(t, "/tmp/evh/config.yaml", paths.Config)
	assert.Equal(t, "/tmp/evh/plugins", paths.Plugins)
	assert.Equal(t, "/tmp/evh/logs", paths.Logs)
	assert.Equal(t, "/tmp/evh/data", paths.Data)
}

func TestPluginDirs(t *testing.T) {
	paths := Paths{Plugins: "/var/eventhost/plugins"}

	assert.Equal(t, []string{"/var/eventhost/plugins"}, paths.PluginDirs(HostConfig{}))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dirs := paths.PluginDirs(HostConfig{PluginDirs: []string{"~/plugins", "/opt/plugins", "rel"}})
	assert.Equal(t, []string{filepath.Join(home, "plugins"), "/opt/plugins", "rel"}, dirs)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, "a", "b"), ExpandHome("~/a/b"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}

func TestEnsureDirs_CreatesAll(t *testing.T) {
	tmpDir := t.TempDir()
	paths := Paths{
		Base:    tmpDir,
		Plugins: filepath.Join(tmpDir, "plugins"),
		Logs:    filepath.Join(tmpDir, "logs"),
		Data:    filepath.Join(tmpDir, "data"),
	}

	require.NoError(t, paths.EnsureDirs())

	for _, dir := range []string{paths.Base, paths.Plugins, paths.Logs, paths.Data} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirs_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	paths := Paths{
		Base:    tmpDir,
		Plugins: filepath.Join(tmpDir, "plugins"),
		Logs:    filepath.Join(tmpDir, "logs"),
		Data:    filepath.Join(tmpDir, "data"),
	}

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs()) // second call should succeed
}

// --- blockedKeys tests ---

func TestBlockedKeys(t *testing.T) {
	assert.True(t, blockedKeys["__proto__"])
	assert.True(t, blockedKeys["prototype"])
	assert.True(t, blockedKeys["constructor"])
	assert.False(t, blockedKeys["gateway"])
	assert.False(t, blockedKeys["port"])
}
