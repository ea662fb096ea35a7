package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/eventhost/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong!"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
	assert.False(t, safeEqual("", "secret"))
}

// --- ResolveAuth ---

func TestResolveAuth(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayAuth
		env  map[string]string
		want ResolvedAuth
	}{
		{
			name: "explicit token",
			cfg:  config.GatewayAuth{Mode: "token", Token: "config-token"},
			want: ResolvedAuth{Mode: AuthToken, Token: "config-token"},
		},
		{
			name: "explicit password",
			cfg:  config.GatewayAuth{Mode: "password", Password: "config-pass"},
			want: ResolvedAuth{Mode: AuthPassword, Password: "config-pass"},
		},
		{
			name: "no credentials is open",
			want: ResolvedAuth{Mode: AuthNone},
		},
		{
			name: "token implies token mode",
			cfg:  config.GatewayAuth{Token: "t"},
			want: ResolvedAuth{Mode: AuthToken, Token: "t"},
		},
		{
			name: "password wins over token",
			cfg:  config.GatewayAuth{Token: "t", Password: "p"},
			want: ResolvedAuth{Mode: AuthPassword, Token: "t", Password: "p"},
		},
		{
			name: "env fills empty values",
			cfg:  config.GatewayAuth{Mode: "token"},
			env:  map[string]string{"EVENTHOST_GATEWAY_TOKEN": "env-token", "EVENTHOST_GATEWAY_PASSWORD": "env-pass"},
			want: ResolvedAuth{Mode: AuthToken, Token: "env-token", Password: "env-pass"},
		},
		{
			name: "config beats env",
			cfg:  config.GatewayAuth{Mode: "token", Token: "config-token"},
			env:  map[string]string{"EVENTHOST_GATEWAY_TOKEN": "env-token"},
			want: ResolvedAuth{Mode: AuthToken, Token: "config-token"},
		},
		{
			name: "env token selects mode",
			env:  map[string]string{"EVENTHOST_GATEWAY_TOKEN": "env-token"},
			want: ResolvedAuth{Mode: AuthToken, Token: "env-token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EVENTHOST_GATEWAY_TOKEN", "")
			t.Setenv("EVENTHOST_GATEWAY_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, ResolveAuth(tt.cfg))
		})
	}
}

// --- Authorize ---

func TestAuthorize(t *testing.T) {
	tokenAuth := ResolvedAuth{Mode: AuthToken, Token: "secret"}
	passAuth := ResolvedAuth{Mode: AuthPassword, Password: "hunter2"}

	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		method string
		reason string
	}{
		{"none mode without credentials", ResolvedAuth{Mode: AuthNone}, nil, true, AuthNone, ""},
		{"none mode ignores credentials", ResolvedAuth{Mode: AuthNone}, &ConnectAuth{Token: "x"}, true, AuthNone, ""},
		{"token success", tokenAuth, &ConnectAuth{Token: "secret"}, true, AuthToken, ""},
		{"token mismatch", tokenAuth, &ConnectAuth{Token: "wrong"}, false, "", "token_mismatch"},
		{"token empty", tokenAuth, &ConnectAuth{}, false, "", "token required"},
		{"token not configured", ResolvedAuth{Mode: AuthToken}, &ConnectAuth{Token: "x"}, false, "", "server token not configured"},
		{"password success", passAuth, &ConnectAuth{Password: "hunter2"}, true, AuthPassword, ""},
		{"password mismatch", passAuth, &ConnectAuth{Password: "nope"}, false, "", "password_mismatch"},
		{"password empty", passAuth, &ConnectAuth{Token: "hunter2"}, false, "", "password required"},
		{"password not configured", ResolvedAuth{Mode: AuthPassword}, &ConnectAuth{Password: "x"}, false, "", "server password not configured"},
		{"nil credentials", tokenAuth, nil, false, "", "no credentials provided"},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, false, "", "unknown auth mode: oauth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.method, res.Method)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestAuthorizeHTTP(t *testing.T) {
	req := func(header string) *http.Request {
		r := httptest.NewRequest("POST", "/events", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	tokenAuth := ResolvedAuth{Mode: AuthToken, Token: "secret"}
	passAuth := ResolvedAuth{Mode: AuthPassword, Password: "hunter2"}

	assert.True(t, AuthorizeHTTP(ResolvedAuth{Mode: AuthNone}, req("")).OK)
	assert.True(t, AuthorizeHTTP(tokenAuth, req("Bearer secret")).OK)
	assert.True(t, AuthorizeHTTP(tokenAuth, req("bearer secret")).OK)
	assert.True(t, AuthorizeHTTP(passAuth, req("Bearer hunter2")).OK)

	res := AuthorizeHTTP(tokenAuth, req(""))
	assert.False(t, res.OK)
	assert.Equal(t, "bearer credentials required", res.Reason)

	assert.False(t, AuthorizeHTTP(tokenAuth, req("Basic c2VjcmV0")).OK)
	assert.False(t, AuthorizeHTTP(tokenAuth, req("Bearer ")).OK)
	assert.Equal(t, "token_mismatch", AuthorizeHTTP(tokenAuth, req("Bearer hunter2")).Reason)
}

// --- authRateLimiter ---

func TestAuthRateLimiter(t *testing.T) {
	limiter := newAuthRateLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	for i := 0; i < authRateMaxFails-1; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	// failures from another port on the same host count
	limiter.recordFailure("192.168.1.1:999")
	assert.False(t, limiter.allow("192.168.1.1:12345"))

	assert.True(t, limiter.allow("192.168.1.2:12345"))
}

func TestAuthRateLimiter_IPWithoutPort(t *testing.T) {
	limiter := newAuthRateLimiter()
	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("192.168.1.1")
	}
	assert.False(t, limiter.allow("192.168.1.1"))
	assert.False(t, limiter.allow("192.168.1.1:5000"))
}

func TestAuthRateLimiter_WindowExpires(t *testing.T) {
	now := time.Now()
	limiter := newAuthRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("10.0.0.1:1")
	}
	require.False(t, limiter.allow("10.0.0.1:1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, limiter.allow("10.0.0.1:1"))

	limiter.mu.Lock()
	_, tracked := limiter.failures["10.0.0.1"]
	limiter.mu.Unlock()
	assert.False(t, tracked)
}

func TestAuthRateLimiter_EvictsOldestAtCapacity(t *testing.T) {
	now := time.Now()
	limiter := newAuthRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < authRateMaxIPs; i++ {
		limiter.recordFailure(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
		now = now.Add(time.Millisecond)
	}
	limiter.recordFailure("192.168.0.1")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.failures, authRateMaxIPs)
	assert.NotContains(t, limiter.failures, "10.0.0.0")
	assert.Contains(t, limiter.failures, "192.168.0.1")
}

func TestAuthRateLimiter_RunStops(t *testing.T) {
	limiter := newAuthRateLimiter()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		limiter.run(stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after stop")
	}
}

// --- checkWebSocketOrigin ---

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest("GET", "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"empty allow list", nil, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://anything.com", true},
		{"exact match", []string{"http://allowed.com"}, "http://allowed.com", true},
		{"no match", []string{"http://allowed.com"}, "http://evil.com", false},
		{"second of many", []string{"http://one.com", "http://two.com"}, "http://two.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(originRequest(tt.origin)))
		})
	}
}
