// Package hooks provides an event-driven hook system for host lifecycle events.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/eventhost/internal/logging"
)

// Event names for the hook system.
const (
	EventHostStart       = "host_start"
	EventHostStop        = "host_stop"
	EventPluginLoaded    = "plugin_loaded"
	EventPluginFailed    = "plugin_failed"
	EventPluginUnloaded  = "plugin_unloaded"
	EventEventDispatched = "event_dispatched"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventHostStart,
	EventHostStop,
	EventPluginLoaded,
	EventPluginFailed,
	EventPluginUnloaded,
	EventEventDispatched,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger

	// async handler accounting; idle is closed whenever pending drops to 0
	pmu     sync.Mutex
	pending int
	idle    chan struct{}
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and debugging.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit dispatches an event to all registered handlers synchronously.
// Handlers are called in registration order. Errors and panics are logged
// but do not prevent subsequent handlers from running.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.call(ctx, h, payload, "hook handler error")
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently.
// Returns immediately; handler errors are logged. Every goroutine started
// here is tracked and can be awaited with Wait.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.track()
		go func(h namedHandler) {
			defer m.untrack()
			m.call(ctx, h, payload, "async hook handler error")
		}(h)
	}
}

// Wait blocks until all handlers started by EmitAsync have returned or the
// context is done. It returns ctx.Err() in the latter case.
// Unlike a WaitGroup, EmitAsync may run concurrently with Wait; handlers
// started after Wait observed an idle manager are not waited for.
func (m *Manager) Wait(ctx context.Context) error {
	m.pmu.Lock()
	n, idle := m.pending, m.idle
	m.pmu.Unlock()
	if n == 0 {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) track() {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	if m.pending == 0 {
		m.idle = make(chan struct{})
	}
	m.pending++
}

func (m *Manager) untrack() {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.pending--
	if m.pending == 0 {
		close(m.idle)
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, payload Payload, msg string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("event", payload.Event).
				Str("handler", h.name).
				Msg("hook handler panic")
		}
	}()

	if err := h.handler(ctx, payload); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", payload.Event).
			Str("handler", h.name).
			Msg(msg)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the list of events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
