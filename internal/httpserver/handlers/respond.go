package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mcpmon/mcpmon/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports a failure the way the dashboard protocol expects:
// a 500 with {"error": message}. Not-found and validation failures are
// distinguished by the message, not the status code.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	log.Warn("request failed", logger.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
