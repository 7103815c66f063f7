package handlers

import (
	"net/http"
	"time"

	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
)

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Services      int       `json:"services"`
	Ollama        bool      `json:"ollama"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Version       string    `json:"version,omitempty"`
	Commit        string    `json:"commit,omitempty"`
	BuildDate     string    `json:"build_date,omitempty"`
	GoVersion     string    `json:"go_version,omitempty"`
}

// Health reports process liveness plus a couple of cheap aggregates. The
// ollama flag comes from the collaborator's own connectivity watcher.
func Health(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			Timestamp:     d.Now(),
			Services:      d.Store.Count(),
			Ollama:        d.Assistant != nil && d.Assistant.Connected(),
			UptimeSeconds: time.Since(start).Seconds(),
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
		})
	}
}
