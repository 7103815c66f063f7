package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/httpserver/handlers"
	"github.com/mcpmon/mcpmon/internal/httpserver/mw"
)

func init() { Register(registerAssistant) }

func registerAssistant(r chi.Router, d deps.Deps) {
	// Model generation can take a while; give it more room than the API.
	r.With(middleware.Timeout(60*time.Second), mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateBurst,
		RefillPerIPPerMin: d.RateRefillPerMin,
		TrustProxy:        d.TrustProxy,
	})).Post("/api/assistant", handlers.Assistant(d))
}
