// Package health drives the liveness state machine of registered services:
// periodic bounded-timeout probes, restart handling, and the test-service
// call. Probe failures are never surfaced as errors to registry callers;
// they become status offline and a lifecycle event.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mcpmon/mcpmon/internal/utils"
)

// Prober checks whether a service endpoint is reachable.
// Implementations must honor ctx and return within a bounded time.
type Prober interface {
	Probe(ctx context.Context, endpoint string) error
}

// maxTestResponse caps how much of a test call's response body is read.
const maxTestResponse = 64 << 10

// HTTPProber probes endpoints with a plain HTTP round trip. Any HTTP
// response, whatever the status code, counts as reachable; only transport
// errors and timeouts count as failures.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober whose requests are bounded by timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 0,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				DisableKeepAlives:     true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Don't follow redirects; a redirect already proves liveness.
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues a GET against endpoint.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", endpoint, err)
	}
	defer utils.Close(resp.Body)

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return nil
}

// Test sends a query to the service endpoint and returns the raw response
// body. Unlike probes, test failures are reported to the caller.
func (p *HTTPProber) Test(ctx context.Context, endpoint, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("encode test query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build test request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("test %s: %w", endpoint, err)
	}
	defer utils.Close(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTestResponse))
	if err != nil {
		return "", fmt.Errorf("read test response: %w", err)
	}
	if len(data) == 0 {
		return resp.Status, nil
	}
	return string(data), nil
}
