package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/eventhost/internal/config"
	"github.com/soyeahso/eventhost/internal/gateway"
	"github.com/soyeahso/eventhost/internal/plugin"
)

// gatewayClient talks to a running eventhost gateway over HTTP.
type gatewayClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// newGatewayClient derives the gateway URL and credentials from config.
// An explicit url overrides the derived one.
func newGatewayClient(cfg config.Config, url string, timeout time.Duration) *gatewayClient {
	auth := gateway.ResolveAuth(cfg.Gateway.Auth)
	secret := auth.Token
	if auth.Mode == gateway.AuthPassword {
		secret = auth.Password
	}
	if url == "" {
		url = gatewayURL(cfg.Gateway)
	}
	return &gatewayClient{
		baseURL: url,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

func gatewayURL(cfg config.GatewayConfig) string {
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" && cfg.CustomBindHost != "0.0.0.0" {
		host = cfg.CustomBindHost
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// apiError is a non-2xx gateway response.
type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Msg)
}

func (c *gatewayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e gateway.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = string(bytes.TrimSpace(data))
		}
		return &apiError{Status: resp.StatusCode, Msg: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health pings the public health endpoint.
func (c *gatewayClient) Health(ctx context.Context) (gateway.HealthResponse, error) {
	var h gateway.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Plugins fetches the running host's plugin descriptors.
func (c *gatewayClient) Plugins(ctx context.Context) (gateway.PluginsResponse, error) {
	var p gateway.PluginsResponse
	err := c.do(ctx, http.MethodGet, "/plugins", nil, &p)
	return p, err
}

// Submit posts one JSON object and returns its dispatch outcome.
func (c *gatewayClient) Submit(ctx context.Context, payload []byte) (plugin.Outcome, error) {
	var out plugin.Outcome
	err := c.do(ctx, http.MethodPost, "/events", payload, &out)
	return out, err
}
