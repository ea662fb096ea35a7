package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddleware(t *testing.T) {
	log := logging.New(nil, "silent")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := loggingMiddleware(inner, log)

	req := httptest.NewRequest("GET", "/events", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := requestIDMiddleware(inner)

	req := httptest.NewRequest("GET", "/events", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddleware_PreservesExisting(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := requestIDMiddleware(inner)

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("X-Request-ID", "custom-id-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "custom-id-123", rr.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware_DenyWhenUnconfigured(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := corsMiddleware(inner, nil) // empty = deny cross-origin

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_AllowWildcard(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := corsMiddleware(inner, []string{"*"})

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_SpecificOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := corsMiddleware(inner, []string{"http://allowed.com"})

	// Allowed origin
	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Origin", "http://allowed.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://allowed.com", rr.Header().Get("Access-Control-Allow-Origin"))

	// Disallowed origin
	req2 := httptest.NewRequest("GET", "/events", nil)
	req2.Header.Set("Origin", "http://evil.com")
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Empty(t, rr2.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("should not reach"))
	})

	handler := corsMiddleware(inner, nil)

	req := httptest.NewRequest("OPTIONS", "/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestWithMiddleware(t *testing.T) {
	log := logging.New(nil, "silent")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := withMiddleware(inner, log, nil)

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Origin", "http://test.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	// CORS headers should not be set when no origins are configured (deny by default)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithMiddleware_WithOrigins(t *testing.T) {
	log := logging.New(nil, "silent")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := withMiddleware(inner, log, []string{"http://test.com"})

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Origin", "http://test.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://test.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWriter_UnwrapAndHijack(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	assert.Same(t, rr, sw.Unwrap())

	// httptest.ResponseRecorder cannot be hijacked
	_, _, err := sw.Hijack()
	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, sw.status)
}

func TestCORSMiddleware_ExposesRequestID(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), []string{"*"})

	req := httptest.NewRequest("POST", "/events", nil)
	req.Header.Set("Origin", "https://dash.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://dash.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", rr.Header().Get("Access-Control-Expose-Headers"))
}
