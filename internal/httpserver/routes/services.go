package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/httpserver/handlers"
	"github.com/mcpmon/mcpmon/internal/httpserver/mw"
)

func init() { Register(registerServices) }

func registerServices(r chi.Router, d deps.Deps) {
	// 10s leaves room for a slow test-service round trip.
	limited := r.With(middleware.Timeout(10*time.Second), mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateBurst,
		RefillPerIPPerMin: d.RateRefillPerMin,
		TrustProxy:        d.TrustProxy,
	}))

	limited.Get("/api/services", handlers.ListServices(d))
	limited.Post("/api/services", handlers.RegisterService(d))
	limited.Put("/api/services/{id}", handlers.UpdateService(d))
	limited.Delete("/api/services/{id}", handlers.DeleteService(d))
	limited.Post("/api/services/{id}/restart", handlers.RestartService(d))
	limited.Post("/api/services/{id}/test", handlers.TestService(d))
}
