package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/eventhost/internal/hooks"
	"github.com/soyeahso/eventhost/internal/logging"
)

// Options configures a Host.
type Options struct {
	// Dirs are scanned in order for plugin files.
	Dirs []string
	// Suffix is the naming convention; DefaultSuffix when empty unless
	// AnySuffix is set.
	Suffix    string
	AnySuffix bool

	Mode           Mode
	DrainTimeout   time.Duration
	ProcessTimeout time.Duration
	UnloadTimeout  time.Duration
	QueueSize      int

	// AllowEmpty lets startup succeed with zero loaded plugins.
	AllowEmpty bool

	// Settings holds per-plugin settings keyed by plugin name.
	Settings map[string]map[string]any
}

// UnloadFailure records a plugin whose Unload returned an error.
type UnloadFailure struct {
	Plugin string `json:"plugin"`
	Reason string `json:"reason"`
}

// ShutdownReport summarizes a shutdown.
type ShutdownReport struct {
	Unloaded      int             `json:"unloaded"`
	DrainTimedOut bool            `json:"drainTimedOut"`
	UnloadErrors  []UnloadFailure `json:"unloadErrors,omitempty"`
}

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseStopping
	phaseStopped
)

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLister replaces the filesystem lister used during startup.
func WithHostLister(l Lister) HostOption {
	return func(h *Host) {
		h.lister = l
	}
}

// WithHostHooks sets the hook manager receiving lifecycle events.
func WithHostHooks(hm *hooks.Manager) HostOption {
	return func(h *Host) {
		h.hooks = hm
	}
}

// Host coordinates startup, event submission and shutdown. Registry
// additions happen only inside Startup and removals only inside Shutdown,
// and Submit is refused outside the running phase, so dispatch never
// overlaps registry mutation.
type Host struct {
	opts      Options
	resolvers Resolvers
	lister    Lister
	hooks     *hooks.Manager
	log       *logging.Logger
	registry  *Registry

	mu         sync.RWMutex
	phase      phase
	dispatcher *Dispatcher
	report     LoadReport
	done       chan struct{}

	shutdownOnce   sync.Once
	shutdownReport ShutdownReport
}

// NewHost creates a host that constructs plugins through resolvers.
func NewHost(opts Options, resolvers Resolvers, log *logging.Logger, hostOpts ...HostOption) *Host {
	if opts.Suffix == "" && !opts.AnySuffix {
		opts.Suffix = DefaultSuffix
	}
	if opts.Mode == "" {
		opts.Mode = ModeSequential
	}
	h := &Host{
		opts:      opts,
		resolvers: resolvers,
		lister:    DirLister{},
		log:       log.Sub("host"),
		registry:  NewRegistry(log),
		done:      make(chan struct{}),
	}
	for _, opt := range hostOpts {
		opt(h)
	}
	return h
}

// Registry returns the plugin registry.
func (h *Host) Registry() *Registry { return h.registry }

// Mode returns the configured delivery mode.
func (h *Host) Mode() Mode { return h.opts.Mode }

// Report returns the load report from Startup.
func (h *Host) Report() LoadReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.report
}

// Descriptors returns the current state of every discovered plugin.
func (h *Host) Descriptors() []Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.report.descs)
}

// Stats returns dispatch counters; zero before Startup.
func (h *Host) Stats() Stats {
	h.mu.RLock()
	d := h.dispatcher
	h.mu.RUnlock()
	if d == nil {
		return Stats{}
	}
	return d.Stats()
}

// Startup discovers and loads plugins, then opens the host for events.
// Per-plugin failures are reported, not returned. The only error is
// ErrNoPlugins when nothing loaded and AllowEmpty is false.
func (h *Host) Startup(ctx context.Context) (LoadReport, error) {
	h.mu.Lock()
	if h.phase != phaseIdle {
		report := h.report
		h.mu.Unlock()
		return report, ErrAlreadyStarted
	}

	loader := NewLoader(h.resolvers, h.log,
		WithLister(h.lister),
		WithSuffix(h.opts.Suffix),
		WithSettings(h.opts.Settings),
		WithLoaderHooks(h.hooks),
	)
	report := loader.Load(ctx, h.opts.Dirs, h.registry)
	h.report = report

	if report.Loaded == 0 && !h.opts.AllowEmpty {
		h.phase = phaseStopped
		h.mu.Unlock()
		err := ErrNoPlugins
		if len(report.DirErrors) > 0 {
			err = fmt.Errorf("%w: %s", ErrNoPlugins, dirErrorSummary(report.DirErrors))
		}
		h.log.Error().Err(err).Msg("refusing to start without plugins")
		return report, err
	}

	h.dispatcher = NewDispatcher(h.registry.All(), h.log,
		WithMode(h.opts.Mode),
		WithProcessTimeout(h.opts.ProcessTimeout),
		WithQueueSize(h.opts.QueueSize),
		WithOutcomeHook(h.emitOutcome),
	)
	h.phase = phaseRunning
	h.mu.Unlock()

	h.log.Info().
		Int("loaded", report.Loaded).
		Int("failed", report.Failed).
		Str("mode", string(h.opts.Mode)).
		Strs("plugins", h.registry.Names()).
		Msg("host started")
	h.emit(ctx, hooks.EventHostStart, map[string]any{
		"loaded":  report.Loaded,
		"failed":  report.Failed,
		"plugins": h.registry.Names(),
	})
	return report, nil
}

// Submit delivers one event to every loaded plugin.
func (h *Host) Submit(ctx context.Context, payload Payload) (Outcome, error) {
	h.mu.RLock()
	ph, d := h.phase, h.dispatcher
	h.mu.RUnlock()

	switch ph {
	case phaseIdle:
		return Outcome{}, ErrNotStarted
	case phaseStopping, phaseStopped:
		return Outcome{}, ErrShuttingDown
	}

	return d.Dispatch(ctx, payload)
}

// emitOutcome runs inside the dispatcher's in-flight window, so every async
// handler it starts is registered before the drain can finish and
// hooks.Wait begins.
func (h *Host) emitOutcome(ctx context.Context, out Outcome) {
	if h.hooks == nil {
		return
	}
	h.hooks.EmitAsync(ctx, hooks.EventEventDispatched, map[string]any{
		"eventId": out.EventID,
		"outcome": out,
	})
	for _, r := range out.Failures() {
		h.hooks.EmitAsync(ctx, hooks.EventPluginFailed, map[string]any{
			"eventId": out.EventID,
			"plugin":  r.Plugin,
			"error":   r.Reason,
		})
	}
}

// Run blocks until ctx is cancelled or Shutdown is called elsewhere, then
// shuts the host down.
func (h *Host) Run(ctx context.Context) ShutdownReport {
	select {
	case <-ctx.Done():
	case <-h.done:
	}
	return h.Shutdown(context.Background())
}

// Done is closed when shutdown begins.
func (h *Host) Done() <-chan struct{} { return h.done }

// Shutdown stops accepting events, drains in-flight dispatches within the
// drain timeout, and unloads plugins in reverse load order. It always
// completes; unload failures are reported. Calling it again returns the
// first report without unloading anything twice.
func (h *Host) Shutdown(ctx context.Context) ShutdownReport {
	h.shutdownOnce.Do(func() {
		h.shutdownReport = h.shutdown(ctx)
	})
	return h.shutdownReport
}

func (h *Host) shutdown(ctx context.Context) ShutdownReport {
	h.mu.Lock()
	prev := h.phase
	h.phase = phaseStopping
	d := h.dispatcher
	close(h.done)
	h.mu.Unlock()

	var report ShutdownReport
	defer func() {
		h.mu.Lock()
		h.phase = phaseStopped
		h.mu.Unlock()
	}()

	if prev != phaseRunning {
		return report
	}

	h.log.Info().Dur("drainTimeout", h.opts.DrainTimeout).Msg("draining in-flight events")
	if err := d.Close(h.opts.DrainTimeout); err != nil {
		report.DrainTimedOut = true
		h.log.Warn().Err(err).Msg("drain incomplete")
	}

	instances := h.registry.All()
	for i := len(instances) - 1; i >= 0; i-- {
		inst := instances[i]
		err := h.unload(ctx, inst)

		h.mu.Lock()
		if terr := inst.desc.transition(StateUnloaded, err); terr != nil {
			h.log.Error().Err(terr).Msg("descriptor state")
		}
		h.mu.Unlock()
		h.registry.Remove(inst)
		report.Unloaded++

		if err != nil {
			report.UnloadErrors = append(report.UnloadErrors, UnloadFailure{Plugin: inst.Name(), Reason: err.Error()})
			h.log.Error().Err(err).Str("plugin", inst.Name()).Msg("plugin unload failed")
		} else {
			h.log.Info().Str("plugin", inst.Name()).Msg("plugin unloaded")
		}
		h.emit(ctx, hooks.EventPluginUnloaded, map[string]any{"plugin": inst.Name()})
	}

	h.emit(ctx, hooks.EventHostStop, map[string]any{
		"unloaded":      report.Unloaded,
		"drainTimedOut": report.DrainTimedOut,
	})
	if h.hooks != nil {
		wctx, cancel := context.WithTimeout(ctx, h.waitBudget())
		if err := h.hooks.Wait(wctx); err != nil {
			h.log.Warn().Err(err).Msg("hook handlers still running at shutdown")
		}
		cancel()
	}

	h.log.Info().
		Int("unloaded", report.Unloaded).
		Int("unloadErrors", len(report.UnloadErrors)).
		Bool("drainTimedOut", report.DrainTimedOut).
		Msg("host stopped")
	return report
}

func (h *Host) unload(ctx context.Context, inst *Instance) error {
	ul, ok := inst.Plugin.(Unloadable)
	if !ok {
		return nil
	}

	uctx := ctx
	if h.opts.UnloadTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, h.opts.UnloadTimeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- safeCall(func() error { return ul.Unload(uctx) })
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return newError(KindUnload, inst.Name(), err)
		}
		return nil
	case <-uctx.Done():
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			return newError(KindTimeout, inst.Name(), ErrTimeout)
		}
		return newError(KindUnload, inst.Name(), uctx.Err())
	}
}

func (h *Host) waitBudget() time.Duration {
	if h.opts.UnloadTimeout > 0 {
		return h.opts.UnloadTimeout
	}
	return 5 * time.Second
}

func (h *Host) emit(ctx context.Context, event string, data map[string]any) {
	if h.hooks != nil {
		h.hooks.Emit(ctx, event, data)
	}
}

func dirErrorSummary(errs []DirError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Dir + ": " + e.Err
	}
	return strings.Join(parts, "; ")
}
