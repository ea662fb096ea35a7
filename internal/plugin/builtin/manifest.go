// Package builtin provides compiled-in plugin kinds and a resolver that
// instantiates them from YAML manifests such as file_logger_plugin.yaml:
//
//	kind: file_logger
//	settings:
//	  path: /var/log/eventhost/events.log
//
// Manifest settings override the plugins.<name> section of the host config.
package builtin

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/soyeahso/eventhost/internal/plugin"
	"gopkg.in/yaml.v3"
)

// Constructor builds a plugin of one kind. settings are the manifest's
// inline settings; the plugin merges them over API.Settings in Load.
type Constructor func(settings Settings) plugin.Plugin

// Kinds maps kind names to constructors.
type Kinds map[string]Constructor

// DefaultKinds returns every compiled-in kind.
func DefaultKinds() Kinds {
	return Kinds{
		KindFileLogger:     NewFileLogger,
		KindConsole:        NewConsole,
		KindSQLiteRecorder: NewRecorder,
		KindIRCRelay:       NewIRCRelay,
	}
}

// Names returns the kind names in lexical order.
func (k Kinds) Names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifest is the on-disk form of a builtin plugin.
type Manifest struct {
	// Kind selects the constructor; the plugin name is used when empty.
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings"`
}

// ReadManifest parses a manifest file.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// Resolver constructs builtin plugins from manifest candidates.
type Resolver struct {
	kinds Kinds
}

// NewResolver creates a manifest resolver for the given kinds.
func NewResolver(kinds Kinds) *Resolver {
	return &Resolver{kinds: kinds}
}

// Resolve reads the manifest and instantiates its kind.
func (r *Resolver) Resolve(_ context.Context, c plugin.Candidate) (plugin.Plugin, error) {
	m, err := ReadManifest(c.Path)
	if err != nil {
		return nil, err
	}
	kind := m.Kind
	if kind == "" {
		kind = c.Name
	}
	ctor, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown plugin kind %q (known: %v)", kind, r.kinds.Names())
	}
	return ctor(Settings(m.Settings)), nil
}

// Register adds the manifest resolver for .yaml and .yml files.
func Register(rs plugin.Resolvers, kinds Kinds) {
	r := NewResolver(kinds)
	rs.Register(".yaml", r)
	rs.Register(".yml", r)
}
