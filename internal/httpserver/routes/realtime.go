package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
)

func init() { Register(registerRealtime) }

// The websocket hub and the Prometheus handler are built by the app and
// injected ready-made; routing only mounts them.
func registerRealtime(r chi.Router, d deps.Deps) {
	if d.WSHandler != nil {
		r.Handle("/ws", d.WSHandler)
	}
	if d.PromHTTP != nil {
		r.Handle("/metrics", d.PromHTTP)
	}
}
