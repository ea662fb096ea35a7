package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/eventhost/internal/config"
)

// Auth modes.
const (
	AuthNone     = "none"
	AuthToken    = "token"
	AuthPassword = "password"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "none" | "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value, then EVENTHOST_GATEWAY_TOKEN / _PASSWORD.
// With no mode configured, a password selects password mode, a token selects
// token mode, and otherwise the gateway is open.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    cfg.Token,
		Password: cfg.Password,
	}
	if auth.Token == "" {
		auth.Token = os.Getenv("EVENTHOST_GATEWAY_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("EVENTHOST_GATEWAY_PASSWORD")
	}

	if auth.Mode == "" {
		switch {
		case auth.Password != "":
			auth.Mode = AuthPassword
		case auth.Token != "":
			auth.Mode = AuthToken
		default:
			auth.Mode = AuthNone
		}
	}
	return auth
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if serverAuth.Mode == AuthNone {
		return AuthResult{OK: true, Method: AuthNone}
	}
	if clientAuth == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case AuthToken:
		return checkSecret(AuthToken, serverAuth.Token, clientAuth.Token)
	case AuthPassword:
		return checkSecret(AuthPassword, serverAuth.Password, clientAuth.Password)
	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// AuthorizeHTTP checks an HTTP request's "Authorization: Bearer <secret>"
// header. The secret is the token or the password depending on the mode.
func AuthorizeHTTP(serverAuth ResolvedAuth, r *http.Request) AuthResult {
	if serverAuth.Mode == AuthNone {
		return AuthResult{OK: true, Method: AuthNone}
	}
	secret, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return AuthResult{OK: false, Reason: "bearer credentials required"}
	}
	ca := &ConnectAuth{Token: secret, Password: secret}
	return Authorize(serverAuth, ca)
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func checkSecret(method, want, got string) AuthResult {
	if want == "" {
		return AuthResult{OK: false, Reason: "server " + method + " not configured"}
	}
	if got == "" {
		return AuthResult{OK: false, Reason: method + " required"}
	}
	if !safeEqual(got, want) {
		return AuthResult{OK: false, Reason: method + "_mismatch"}
	}
	return AuthResult{OK: true, Method: method}
}

// safeEqual performs a constant-time string comparison. Length is compared
// with ConstantTimeEq so a mismatch does not return early.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// authRateLimiter tracks failed auth attempts per IP.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// run prunes stale entries every minute until stop is closed.
func (l *authRateLimiter) run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip := range l.failures {
				l.pruneLocked(ip)
			}
			l.mu.Unlock()
		}
	}
}

// pruneLocked drops failures older than the window and reports how many remain.
func (l *authRateLimiter) pruneLocked(ip string) int {
	cutoff := l.now().Add(-authRateWindow)
	times := l.failures[ip]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, ip)
		return 0
	}
	l.failures[ip] = kept
	return len(kept)
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	ip := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(ip) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	ip := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[ip]; !exists && len(l.failures) >= authRateMaxIPs {
		l.evictOldestLocked()
	}
	l.failures[ip] = append(l.failures[ip], l.now())
}

func (l *authRateLimiter) evictOldestLocked() {
	var oldestIP string
	var oldest time.Time
	for ip, times := range l.failures {
		if len(times) > 0 && (oldestIP == "" || times[0].Before(oldest)) {
			oldestIP, oldest = ip, times[0]
		}
	}
	if oldestIP != "" {
		delete(l.failures, oldestIP)
	}
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
