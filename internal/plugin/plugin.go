// Package plugin discovers event-handling plugins from directories, keeps the
// loaded ones in an ordered registry, fans each incoming event out to them
// with per-plugin failure isolation, and drives the load/run/unload lifecycle.
package plugin

import (
	"context"

	"github.com/soyeahso/eventhost/internal/hooks"
	"github.com/soyeahso/eventhost/internal/logging"
)

// Payload is an untyped event record received from the transport. The core
// never inspects its keys.
type Payload map[string]any

// Plugin is the capability every plugin must provide.
type Plugin interface {
	// ProcessEvent handles one event. It must honor ctx cancellation and
	// must not assume any ordering relative to other plugins.
	ProcessEvent(ctx context.Context, payload Payload) error
}

// Loadable is implemented by plugins that need setup before the first event.
// Load is called exactly once; a returned error keeps the plugin out of the
// registry. Resources acquired before the error are the plugin's to release.
type Loadable interface {
	Load(ctx context.Context, api API) error
}

// Unloadable is implemented by plugins that hold resources. Unload is called
// once after the last event was delivered.
type Unloadable interface {
	Unload(ctx context.Context) error
}

// API is handed to a plugin's Load.
type API struct {
	Name     string
	Log      *logging.Logger
	Hooks    *hooks.Manager
	Settings map[string]any
}

// Setting returns a settings value, or nil when absent.
func (a API) Setting(key string) any {
	if a.Settings == nil {
		return nil
	}
	return a.Settings[key]
}

// Instance is a loaded plugin owned by the Registry.
type Instance struct {
	desc   *Descriptor
	Plugin Plugin
}

// Name returns the plugin name derived from its source file.
func (i *Instance) Name() string { return i.desc.Name }

// Source returns the path the plugin was loaded from.
func (i *Instance) Source() string { return i.desc.Source }

// clonePayload deep-copies JSON-compatible values so that plugins running
// concurrently never share mutable maps or slices.
func clonePayload(p Payload) Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Payload:
		return map[string]any(clonePayload(val))
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return val
	}
}
