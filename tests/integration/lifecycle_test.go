package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmon/mcpmon/internal/domain"
	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/health"
	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/httpserver/routes"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/metrics"
	"github.com/mcpmon/mcpmon/internal/registry"
)

type stubAssistant struct{}

func (stubAssistant) Connected() bool { return false }
func (stubAssistant) Chat(_ context.Context, _, _ string) (string, error) {
	return "the assistant backend is not available right now", nil
}

// stack wires the real components together the way the app does, minus the
// listener: requests go straight at the router.
type stack struct {
	router  chi.Router
	store   *registry.Store
	bus     *eventbus.Bus
	monitor *health.Monitor
	agg     *metrics.Aggregator
}

func newStack(t *testing.T) *stack {
	t.Helper()

	log := logger.New("error", false)
	store := registry.NewStore()
	bus := eventbus.New(log, nil)
	prober := health.NewHTTPProber(500 * time.Millisecond)
	monitor := health.NewMonitor(store, bus, prober, log, 50*time.Millisecond, 50*time.Millisecond)
	agg := metrics.NewAggregator(store, bus, log, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, monitor.Start(ctx))
	require.NoError(t, agg.Start(ctx))
	t.Cleanup(func() {
		monitor.Stop()
		agg.Stop()
		cancel()
	})

	d := deps.Deps{
		Logger:           log,
		TimeNow:          time.Now,
		RateBurst:        1000,
		RateRefillPerMin: 60000,
		Store:            store,
		Bus:              bus,
		Monitor:          monitor,
		Tester:           prober,
		Assistant:        stubAssistant{},
	}
	r := chi.NewRouter()
	routes.RegisterAll(r, d)

	return &stack{router: r, store: store, bus: bus, monitor: monitor, agg: agg}
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// eventLog collects event types from a subscription so assertions can poll
// them without racing the consumer goroutine.
type eventLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *eventLog) consume(sub *eventbus.Subscription, done chan struct{}) {
	for {
		select {
		case evt := <-sub.C():
			l.mu.Lock()
			l.seen = append(l.seen, evt.Type)
			l.mu.Unlock()
		case <-done:
			return
		}
	}
}

func (l *eventLog) has(typ string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.seen {
		if s == typ {
			return true
		}
	}
	return false
}

func TestServiceLifecycle(t *testing.T) {
	s := newStack(t)

	// Backend the monitor will probe. It can be flipped unreachable.
	var healthy atomic.Bool
	healthy.Store(true)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "done"})
	}))
	defer backend.Close()

	// Register through the API.
	rec := s.do(t, http.MethodPost, "/api/services",
		`{"name":"files","type":"server","endpoint":"`+backend.URL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var svc domain.Service
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &svc))
	require.NotEmpty(t, svc.ID)
	assert.Equal(t, domain.StatusPending, svc.Status)

	// The immediate check plus the short sweep flip it to active.
	assert.Eventually(t, func() bool {
		got, ok := s.store.Get(svc.ID)
		return ok && got.Status == domain.StatusActive
	}, 2*time.Second, 10*time.Millisecond, "service never became active")

	// Kill the backend; the next sweep marks it offline.
	healthy.Store(false)
	assert.Eventually(t, func() bool {
		got, ok := s.store.Get(svc.ID)
		return ok && got.Status == domain.StatusOffline
	}, 2*time.Second, 10*time.Millisecond, "service never went offline")

	// Bring it back and restart through the API: restarting, then active
	// again once the delayed re-evaluation runs.
	healthy.Store(true)

	sub := s.bus.Subscribe(eventbus.TopicLifecycle)
	defer sub.Close()
	log := &eventLog{}
	done := make(chan struct{})
	defer close(done)
	go log.consume(sub, done)

	rec = s.do(t, http.MethodPost, "/api/services/"+svc.ID+"/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got, ok := s.store.Get(svc.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusRestarting, got.Status)

	assert.Eventually(t, func() bool {
		got, ok := s.store.Get(svc.ID)
		return ok && got.Status == domain.StatusActive && !got.RestartedAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond, "restart never completed")

	assert.Eventually(t, func() bool {
		return log.has(eventbus.EventServiceRestarted)
	}, 2*time.Second, 10*time.Millisecond, "restarted event never observed")

	// Metrics snapshots reflect the active count.
	msub := s.bus.Subscribe(eventbus.TopicMetrics)
	defer msub.Close()
	select {
	case evt := <-msub.C():
		snap, ok := evt.Payload.(metrics.Snapshot)
		require.True(t, ok)
		assert.Equal(t, 1, snap.TotalServices)
		assert.Equal(t, 1, snap.ActiveServices)
	case <-time.After(2 * time.Second):
		t.Fatal("no metrics snapshot published")
	}

	// Test call round-trips to the backend.
	rec = s.do(t, http.MethodPost, "/api/services/"+svc.ID+"/test", `{"query":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var testResp struct {
		Response string `json:"response"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &testResp))
	assert.Equal(t, "ok", testResp.Status)
	assert.Contains(t, testResp.Response, "done")

	// Delete; the service disappears and the listing is empty again.
	rec = s.do(t, http.MethodDelete, "/api/services/"+svc.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/services", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Service
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestDeleteDuringRestartDoesNotResurrect(t *testing.T) {
	s := newStack(t)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	rec := s.do(t, http.MethodPost, "/api/services",
		`{"name":"files","endpoint":"`+backend.URL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var svc domain.Service
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &svc))

	rec = s.do(t, http.MethodPost, "/api/services/"+svc.ID+"/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/services/"+svc.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Even after the restart delay has long passed, the entry stays gone.
	time.Sleep(200 * time.Millisecond)
	_, ok := s.store.Get(svc.ID)
	assert.False(t, ok)
}
