package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/soyeahso/eventhost/internal/plugin"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", handleHello)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /plugins", s.requireAuth(s.handlePlugins))
	mux.HandleFunc("POST /events", s.requireAuth(s.handleEvent))
	mux.HandleFunc("POST /mcp", s.requireAuth(s.handleEvent))
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all WebSocket RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("event.submit", s.rpcEventSubmit)
	s.Handle("plugins.list", s.rpcPluginsList)
}

// submit hands a payload to the host. An admitted event is dispatched to
// completion even if the caller goes away.
func (s *Server) submit(ctx context.Context, payload map[string]any) (plugin.Outcome, error) {
	return s.host.Submit(context.WithoutCancel(ctx), plugin.Payload(payload))
}

// statusFor maps a Submit error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, plugin.ErrShuttingDown), errors.Is(err, plugin.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor maps a Submit error to an RPC error code.
func codeFor(err error) string {
	if statusFor(err) == http.StatusServiceUnavailable {
		return "unavailable"
	}
	return "internal_error"
}

func (s *Server) health(detailed bool) HealthResponse {
	h := HealthResponse{Status: "ok"}
	if !detailed {
		return h
	}
	h.Version = s.version
	h.Clients = s.clients.Count()
	for _, d := range s.host.Descriptors() {
		if d.State == plugin.StateLoaded {
			h.Plugins++
		}
	}
	h.Events = s.host.Stats().Events
	h.UptimeMs = s.uptime().Milliseconds()
	return h
}

func (s *Server) plugins() PluginsResponse {
	descs := s.host.Descriptors()
	if descs == nil {
		descs = []plugin.Descriptor{}
	}
	return PluginsResponse{Plugins: descs, Stats: s.host.Stats()}
}

// RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(s.health(true))
}

func (s *Server) rpcPluginsList(rc *RequestContext) {
	rc.Respond(s.plugins())
}

func (s *Server) rpcEventSubmit(rc *RequestContext) {
	var p SubmitParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Payload == nil {
		rc.RespondError("invalid_params", errNotObject.Error())
		return
	}

	out, err := s.submit(rc.Ctx, p.Payload)
	if err != nil {
		rc.RespondError(codeFor(err), err.Error())
		return
	}
	rc.Respond(out)
}
