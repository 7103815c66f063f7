package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcpmon/mcpmon/internal/domain"
	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/logger"
)

// ListServices returns every registered service in insertion order.
func ListServices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Store.All())
	}
}

// RegisterService creates a service from the request body, announces it on
// the lifecycle topic and schedules its first health evaluation.
func RegisterService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg domain.RegisterConfig
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			writeError(w, d.Logger, domain.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		svc, err := d.Store.Register(cfg)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		d.Logger.Info("service registered",
			logger.String("service_id", svc.ID),
			logger.String("name", svc.Name),
			logger.String("endpoint", svc.Endpoint))

		d.Bus.Publish(eventbus.TopicLifecycle, eventbus.Event{
			Type:    eventbus.EventServiceRegistered,
			Payload: svc,
			Time:    d.Now(),
		})

		// First evaluation runs detached from the request: the probe must
		// not extend the response and must survive client disconnects.
		d.Monitor.CheckNow(context.Background(), svc.ID)

		writeJSON(w, http.StatusOK, svc)
	}
}

// UpdateService merges the allow-listed fields into an existing service.
// Unknown fields in the body are rejected rather than silently dropped.
func UpdateService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var cfg domain.UpdateConfig
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			writeError(w, d.Logger, domain.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		svc, err := d.Store.Update(id, cfg)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		d.Bus.Publish(eventbus.TopicLifecycle, eventbus.Event{
			Type:    eventbus.EventServiceUpdated,
			Payload: svc,
			Time:    d.Now(),
		})

		writeJSON(w, http.StatusOK, svc)
	}
}

// DeleteService removes a service. Deleting twice is not an error; the
// response reports whether anything was actually removed. A pending
// restart re-evaluation is cancelled so it cannot resurrect the entry.
func DeleteService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		deleted := d.Store.Delete(id)
		if deleted {
			d.Monitor.CancelRestart(id)
			d.Logger.Info("service deleted", logger.String("service_id", id))
		}

		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}

// RestartService flips the service into restarting and arms the delayed
// re-evaluation.
func RestartService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := d.Monitor.Restart(context.Background(), id); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type testRequest struct {
	Query string `json:"query"`
}

type testResponse struct {
	Response string `json:"response"`
	Latency  int64  `json:"latency"`
	Status   string `json:"status"`
}

// TestService sends a query to the service endpoint and reports the reply
// with the observed round-trip latency in milliseconds.
func TestService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		svc, ok := d.Store.Get(id)
		if !ok {
			writeError(w, d.Logger, domain.NewNotFoundError(id))
			return
		}

		var req testRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, d.Logger, domain.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		start := time.Now()
		resp, err := d.Tester.Test(r.Context(), svc.Endpoint, req.Query)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		writeJSON(w, http.StatusOK, testResponse{
			Response: resp,
			Latency:  latency,
			Status:   "ok",
		})
	}
}
