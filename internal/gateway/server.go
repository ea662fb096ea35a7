// Package gateway exposes a plugin host over HTTP and WebSocket. Events are
// accepted as JSON objects, submitted to the host, and answered with the
// dispatch outcome; WebSocket clients also receive every outcome as it
// happens.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/eventhost/internal/config"
	"github.com/soyeahso/eventhost/internal/hooks"
	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
	"github.com/soyeahso/eventhost/internal/version"
)

// ErrClientClosed is returned when sending to a closed WebSocket client.
var ErrClientClosed = errors.New("client connection closed")

const (
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
	frameOverhead    = 64 << 10
)

// Host is the part of the plugin host the gateway drives.
type Host interface {
	Submit(ctx context.Context, payload plugin.Payload) (plugin.Outcome, error)
	Descriptors() []plugin.Descriptor
	Stats() plugin.Stats
	Mode() plugin.Mode
}

// Server is the eventhost gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	host     Host
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	hooks    *hooks.Manager

	mu         sync.Mutex
	addr       string
	startedAt  time.Time
	httpServer *http.Server
	ready      chan struct{}

	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager. The server emits gateway_start and
// gateway_stop on it and broadcasts every event_dispatched outcome to
// WebSocket clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a new gateway server in front of host.
func New(cfg config.Config, host Host, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg.Gateway,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		host:        host,
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		ready:       make(chan struct{}),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	if s.hooks != nil {
		s.hooks.On(hooks.EventEventDispatched, "gateway.outcome", s.broadcastOutcome)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin header (non-browser clients) are always allowed;
// otherwise the Origin must be listed, or the list must contain "*".
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int { return s.clients.Count() }

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

func (s *Server) maxBody() int64 {
	if s.cfg.MaxBodyBytes > 0 {
		return s.cfg.MaxBodyBytes
	}
	return config.DefaultMaxBodyBytes
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections. It blocks until
// ctx is cancelled and every in-flight request has finished, or an error
// occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind != "loopback" && s.auth.Mode != AuthNone {
		s.log.Warn().Msg("TLS is not enabled, credentials will be sent in cleartext")
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()
	close(s.ready)

	stopLimiter := make(chan struct{})
	go s.authLimiter.run(stopLimiter)

	s.log.Info().
		Str("addr", s.Addr()).
		Str("bind", s.cfg.Bind).
		Str("auth", s.auth.Mode).
		Strs("methods", s.Methods()).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": s.Addr()})
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		close(stopLimiter)
		s.clients.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
		}
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// broadcastOutcome pushes a dispatch outcome to every WebSocket client.
func (s *Server) broadcastOutcome(_ context.Context, p hooks.Payload) error {
	out, ok := p.Data["outcome"].(plugin.Outcome)
	if !ok {
		return fmt.Errorf("unexpected outcome type %T", p.Data["outcome"])
	}
	s.clients.PublishOutcome(out)
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after repeated auth failures")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.maxBody() + frameOverhead)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake performs the WebSocket authentication handshake.
// Flow: server sends challenge, client sends connect, server validates and
// answers with hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
		"auth":  s.auth.Mode,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
			return nil, fmt.Errorf("parsing connect params: %w", err)
		}
	}
	if params.MinProtocol > ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, "protocol_error",
			fmt.Sprintf("protocol %d not supported", params.MinProtocol))
		return nil, fmt.Errorf("client requires protocol %d", params.MinProtocol)
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, authResult)

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventConnectChallenge, EventOutcome},
		},
		Policy: ServerPolicy{
			MaxPayload:   s.maxBody(),
			DispatchMode: string(s.host.Mode()),
		},
	}

	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := client.Send(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")

	return client, nil
}

// readLoop processes incoming frames from an authenticated client.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read loop ended")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(ctx, client, frame)
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
	})
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{
		Code:    code,
		Message: message,
	}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
