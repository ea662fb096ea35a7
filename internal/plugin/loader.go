package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soyeahso/eventhost/internal/hooks"
	"github.com/soyeahso/eventhost/internal/logging"
)

// DefaultSuffix is the naming convention a file base name must end with.
const DefaultSuffix = "_plugin"

// DirError records a directory that could not be listed.
type DirError struct {
	Dir string `json:"dir"`
	Err string `json:"error"`
}

// LoadReport summarizes one discovery pass.
type LoadReport struct {
	Loaded      int          `json:"loaded"`
	Failed      int          `json:"failed"`
	Descriptors []Descriptor `json:"descriptors"`
	DirErrors   []DirError   `json:"dirErrors,omitempty"`

	descs []*Descriptor
}

// Failures returns the descriptors that failed to load.
func (r LoadReport) Failures() []Descriptor {
	var out []Descriptor
	for _, d := range r.Descriptors {
		if d.State == StateFailed {
			out = append(out, d)
		}
	}
	return out
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLister replaces the filesystem directory lister.
func WithLister(l Lister) LoaderOption {
	return func(ld *Loader) {
		ld.lister = l
	}
}

// WithSuffix sets the naming convention suffix. An empty suffix accepts
// every file.
func WithSuffix(suffix string) LoaderOption {
	return func(ld *Loader) {
		ld.suffix = suffix
	}
}

// WithSettings sets per-plugin settings keyed by plugin name.
func WithSettings(settings map[string]map[string]any) LoaderOption {
	return func(ld *Loader) {
		ld.settings = settings
	}
}

// WithLoaderHooks sets the hook manager handed to plugins and notified of
// load results.
func WithLoaderHooks(hm *hooks.Manager) LoaderOption {
	return func(ld *Loader) {
		ld.hooks = hm
	}
}

// Loader discovers plugin files, constructs them through the resolver for
// their extension, and loads them into a Registry.
type Loader struct {
	lister    Lister
	resolvers Resolvers
	suffix    string
	settings  map[string]map[string]any
	hooks     *hooks.Manager
	log       *logging.Logger
}

// NewLoader creates a loader using the given resolvers.
func NewLoader(resolvers Resolvers, log *logging.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		lister:    DirLister{},
		resolvers: resolvers,
		suffix:    DefaultSuffix,
		log:       log.Sub("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates lists the files matching the naming convention, directories in
// the given order and files in lexical order within each directory.
func (l *Loader) Candidates(dirs []string) ([]Candidate, []DirError) {
	var (
		out     []Candidate
		dirErrs []DirError
	)
	for _, dir := range dirs {
		names, err := l.lister.List(dir)
		if err != nil {
			l.log.Warn().Err(err).Str("dir", dir).Msg("cannot list plugin directory")
			dirErrs = append(dirErrs, DirError{Dir: dir, Err: err.Error()})
			continue
		}

		sorted := make([]string, len(names))
		copy(sorted, names)
		sort.Strings(sorted)

		for _, file := range sorted {
			if c, ok := l.match(dir, file); ok {
				out = append(out, c)
			} else {
				l.log.Trace().Str("dir", dir).Str("file", file).Msg("skipping non-plugin file")
			}
		}
	}
	return out, dirErrs
}

func (l *Loader) match(dir, file string) (Candidate, bool) {
	if file == "" || strings.HasPrefix(file, ".") {
		return Candidate{}, false
	}
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	if base == "" || !strings.HasSuffix(base, l.suffix) {
		return Candidate{}, false
	}
	name := strings.TrimSuffix(base, l.suffix)
	if name == "" {
		return Candidate{}, false
	}
	return Candidate{
		Name: name,
		File: file,
		Path: filepath.Join(dir, file),
		Dir:  dir,
		Ext:  strings.ToLower(ext),
	}, true
}

// Load discovers, constructs and loads every candidate under dirs, appending
// successes to reg. Individual failures are recorded in the report and never
// abort the pass.
func (l *Loader) Load(ctx context.Context, dirs []string, reg *Registry) LoadReport {
	candidates, dirErrs := l.Candidates(dirs)
	report := LoadReport{DirErrors: dirErrs}

	for _, c := range candidates {
		desc := &Descriptor{Name: c.Name, Source: c.Path, State: StateDiscovered}
		report.descs = append(report.descs, desc)

		p, err := l.construct(ctx, c)
		if err == nil {
			err = l.load(ctx, c, p)
		}
		if err != nil {
			_ = desc.transition(StateFailed, err)
			report.Failed++
			l.log.Error().Err(err).Str("plugin", c.Name).Str("source", c.Path).Msg("plugin failed to load")
			l.emit(ctx, hooks.EventPluginFailed, map[string]any{
				"plugin": c.Name,
				"source": c.Path,
				"error":  err.Error(),
			})
			continue
		}

		_ = desc.transition(StateLoaded, nil)
		reg.Add(&Instance{desc: desc, Plugin: p})
		report.Loaded++
		l.log.Info().Str("plugin", c.Name).Str("source", c.Path).Msg("plugin loaded")
		l.emit(ctx, hooks.EventPluginLoaded, map[string]any{
			"plugin": c.Name,
			"source": c.Path,
		})
	}

	report.Descriptors = snapshot(report.descs)

	ev := l.log.Info()
	if report.Loaded == 0 {
		ev = l.log.Warn()
	}
	ev.Int("loaded", report.Loaded).
		Int("failed", report.Failed).
		Int("dirErrors", len(report.DirErrors)).
		Msg("plugin discovery complete")

	return report
}

func (l *Loader) construct(ctx context.Context, c Candidate) (Plugin, error) {
	r, ok := l.resolvers.lookup(c.Ext)
	if !ok {
		return nil, newError(KindConstruction, c.Name, fmt.Errorf("%w: %q", ErrNoResolver, c.Ext))
	}

	var p Plugin
	err := safeCall(func() error {
		var err error
		p, err = r.Resolve(ctx, c)
		return err
	})
	switch {
	case errors.Is(err, ErrMissingProcessEvent):
		return nil, newError(KindDiscovery, c.Name, err)
	case err != nil:
		return nil, newError(KindConstruction, c.Name, err)
	case p == nil:
		return nil, newError(KindDiscovery, c.Name, ErrMissingProcessEvent)
	}
	return p, nil
}

func (l *Loader) load(ctx context.Context, c Candidate, p Plugin) error {
	lp, ok := p.(Loadable)
	if !ok {
		return nil
	}
	api := API{
		Name:     c.Name,
		Log:      l.log.Sub(c.Name),
		Hooks:    l.hooks,
		Settings: l.settings[c.Name],
	}
	if err := safeCall(func() error { return lp.Load(ctx, api) }); err != nil {
		return newError(KindLoad, c.Name, err)
	}
	return nil
}

func (l *Loader) emit(ctx context.Context, event string, data map[string]any) {
	if l.hooks != nil {
		l.hooks.Emit(ctx, event, data)
	}
}

func snapshot(descs []*Descriptor) []Descriptor {
	out := make([]Descriptor, len(descs))
	for i, d := range descs {
		out[i] = *d
	}
	return out
}
