package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/logger"
)

type assistantRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

type assistantResponse struct {
	Response string `json:"response"`
}

// Assistant proxies a chat query to the Ollama collaborator. Backend
// failures degrade to a canned reply; this endpoint never returns a raw
// downstream error.
func Assistant(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, assistantResponse{
				Response: "I could not read that question. Please try again.",
			})
			return
		}

		reply, err := d.Assistant.Chat(r.Context(), req.Query, req.Context)
		if err != nil {
			d.Logger.Warn("assistant backend failed", logger.Error(err))
		}

		writeJSON(w, http.StatusOK, assistantResponse{Response: reply})
	}
}
