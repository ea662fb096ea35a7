package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	errEmptyBody = errors.New("request body is empty")
	errNotObject = errors.New("payload must be a JSON object")
	errTrailing  = errors.New("unexpected data after JSON object")
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Plugins  int    `json:"plugins,omitempty"`
	Events   uint64 `json:"events,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// handleHello answers the root route.
func handleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "eventhost gateway\n")
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health(false))
}

// handlePlugins lists plugin descriptors.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.plugins())
}

// handleEvent accepts one JSON object and answers with its dispatch outcome.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
	payload, err := decodePayload(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.submit(r.Context(), payload)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.log.Debug().
		Str("eventId", out.EventID).
		Str("path", r.URL.Path).
		Int("delivered", out.Delivered()).
		Int("failed", len(out.Failures())).
		Msg("event received")
	writeJSON(w, http.StatusOK, out)
}

// decodePayload reads exactly one JSON object; anything but whitespace
// after it is rejected.
func decodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errTrailing
	}
	return m, nil
}

// requireAuth rejects requests without valid bearer credentials.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		res := AuthorizeHTTP(s.auth, r)
		if !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="eventhost"`)
			writeError(w, http.StatusUnauthorized, res.Reason)
			return
		}
		next(w, r)
	}
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Path: r.URL.Path})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
