package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/health"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/registry"
)

// Tester performs the externally invoked "test service" call.
// health.HTTPProber is the default implementation.
type Tester interface {
	Test(ctx context.Context, endpoint, query string) (string, error)
}

// Assistant is the slice of the Ollama collaborator the handlers need.
// contextInfo is caller-supplied background prepended to the prompt.
type Assistant interface {
	Connected() bool
	Chat(ctx context.Context, query, contextInfo string) (string, error)
}

type Deps struct {
	Logger     logger.Logger
	StartTime  time.Time
	Version    string
	Commit     string
	BuildDate  string
	GoVersion  string
	TimeNow    func() time.Time // for testing, defaults to time.Now
	TrustProxy bool             // true if running behind a trusted reverse proxy

	RateBurst        int // token bucket burst per client IP (0 = use default)
	RateRefillPerMin int // token refill per client IP per minute

	Store     *registry.Store // authoritative service collection
	Bus       *eventbus.Bus   // broadcast path to observers
	Monitor   *health.Monitor // probe scheduling + restarts
	Tester    Tester          // test-service calls
	Assistant Assistant       // assistant backend (external collaborator)
	WSHandler http.Handler    // websocket upgrade endpoint
	PromHTTP  http.Handler    // Prometheus exposition endpoint
}

// Now returns the injected clock, falling back to time.Now.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
