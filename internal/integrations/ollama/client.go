// Package ollama talks to a local Ollama instance, the backend behind the
// dashboard's assistant. It is an external collaborator of the registry:
// its failures degrade answers, they never surface as raw errors.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/utils"
)

// FallbackReply is returned by Chat when the backend is unreachable.
const FallbackReply = "The assistant backend is currently unavailable. Please try again later."

// Client is a thin wrapper over the Ollama HTTP API with a background
// connectivity watcher.
type Client struct {
	baseURL  string
	model    string
	http     *http.Client
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}

	connected atomic.Bool
}

// New creates a client. checkInterval drives the background liveness watch
// started by Start.
func New(baseURL, model string, timeout, checkInterval time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		model:    model,
		http:     &http.Client{Timeout: timeout},
		logger:   log,
		interval: checkInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start checks connectivity once, then keeps rechecking on the interval.
func (c *Client) Start(ctx context.Context) error {
	c.checkConnection(ctx)

	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.checkConnection(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the connectivity watcher.
func (c *Client) Stop() {
	close(c.stopCh)
}

// Connected reports the backend's liveness as of the last check.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) checkConnection(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		c.connected.Store(false)
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if c.connected.Swap(false) {
			c.logger.Warn("ollama backend lost", logger.Error(err))
		}
		return
	}
	defer utils.Close(resp.Body)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	ok := resp.StatusCode == http.StatusOK
	if ok && !c.connected.Swap(true) {
		c.logger.Info("ollama backend connected", logger.String("url", c.baseURL))
	}
	if !ok {
		c.connected.Store(false)
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Chat sends query to the model and returns its reply. contextInfo, when
// present, is prepended to the prompt as background for the model. On any
// failure Chat returns the fallback reply and the underlying error; callers
// that want a degraded-but-valid payload can use the reply and just log the
// error.
func (c *Client) Chat(ctx context.Context, query, contextInfo string) (string, error) {
	prompt := query
	if contextInfo != "" {
		prompt = contextInfo + "\n\n" + query
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return FallbackReply, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return FallbackReply, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return FallbackReply, fmt.Errorf("ollama chat: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return FallbackReply, fmt.Errorf("ollama chat: unexpected status %s", resp.Status)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FallbackReply, fmt.Errorf("decode chat response: %w", err)
	}
	if out.Response == "" {
		return FallbackReply, nil
	}
	return out.Response, nil
}
