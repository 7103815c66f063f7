package health

import (
	"context"
	"sync"
	"time"

	"github.com/mcpmon/mcpmon/internal/domain"
	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/registry"
)

// Monitor periodically probes every registered service and drives its
// status transitions. It is the only component besides the HTTP layer that
// mutates the store, and it only ever touches status-related fields.
type Monitor struct {
	store        *registry.Store
	bus          *eventbus.Bus
	prober       Prober
	logger       logger.Logger
	interval     time.Duration
	restartDelay time.Duration
	stopCh       chan struct{}

	mu       sync.Mutex
	inFlight map[string]bool        // ids with a probe currently running
	restarts map[string]*time.Timer // pending restart re-evaluations by id

	wg sync.WaitGroup
}

// NewMonitor creates a monitor. interval is the sweep period, restartDelay
// the pause before a restart's re-evaluation.
func NewMonitor(
	store *registry.Store,
	bus *eventbus.Bus,
	prober Prober,
	log logger.Logger,
	interval time.Duration,
	restartDelay time.Duration,
) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if restartDelay <= 0 {
		restartDelay = 2 * time.Second
	}
	return &Monitor{
		store:        store,
		bus:          bus,
		prober:       prober,
		logger:       log,
		interval:     interval,
		restartDelay: restartDelay,
		stopCh:       make(chan struct{}),
		inFlight:     make(map[string]bool),
		restarts:     make(map[string]*time.Timer),
	}
}

// Start begins the periodic probe sweep. An immediate sweep runs first so
// freshly seeded services leave pending without waiting a full interval.
func (m *Monitor) Start(ctx context.Context) error {
	m.sweep(ctx)

	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the sweep loop, cancels pending restarts and waits for
// in-flight probes to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)

	m.mu.Lock()
	for id, timer := range m.restarts {
		timer.Stop()
		delete(m.restarts, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// sweep probes every service not currently restarting. Each probe runs in
// its own goroutine so one unreachable endpoint cannot delay the others;
// an in-flight guard keeps at most one probe per service.
func (m *Monitor) sweep(ctx context.Context) {
	for _, svc := range m.store.All() {
		if svc.Status == domain.StatusRestarting {
			continue
		}
		m.CheckNow(ctx, svc.ID)
	}
}

// CheckNow schedules an immediate asynchronous probe of the service.
// Called for every registration so the first health evaluation does not
// wait for the next sweep. A probe already in flight is not duplicated.
func (m *Monitor) CheckNow(ctx context.Context, id string) {
	m.mu.Lock()
	if m.inFlight[id] {
		m.mu.Unlock()
		return
	}
	m.inFlight[id] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, id)
			m.mu.Unlock()
		}()
		m.probeOne(ctx, id)
	}()
}

// probeOne runs a single probe and records the outcome. The most recent
// probe result wins; a failure is absorbed into status offline, never
// raised to anyone.
func (m *Monitor) probeOne(ctx context.Context, id string) {
	svc, ok := m.store.Get(id)
	if !ok || svc.Status == domain.StatusRestarting {
		return
	}

	status := m.probe(ctx, svc.Endpoint)
	updated, changed, err := m.store.SetStatus(id, status, time.Now())
	if err != nil {
		// Deleted while the probe was in flight.
		return
	}
	if changed {
		m.publishStatus(updated)
	}
}

func (m *Monitor) probe(ctx context.Context, endpoint string) domain.Status {
	if err := m.prober.Probe(ctx, endpoint); err != nil {
		m.logger.Debug("probe failed",
			logger.String("endpoint", endpoint),
			logger.Error(err))
		return domain.StatusOffline
	}
	return domain.StatusActive
}

// Restart flips the service into restarting and arms a delayed
// re-evaluation. Requesting a restart while one is already pending re-arms
// the delay: the service gets a full quiet period after the latest request
// before being probed again.
func (m *Monitor) Restart(ctx context.Context, id string) (domain.Service, error) {
	svc, changed, err := m.store.MarkRestarting(id)
	if err != nil {
		return domain.Service{}, err
	}
	if changed {
		m.publishStatus(svc)
	}

	m.mu.Lock()
	if timer, ok := m.restarts[id]; ok {
		timer.Stop()
	}
	m.restarts[id] = time.AfterFunc(m.restartDelay, func() {
		m.completeRestart(ctx, id)
	})
	m.mu.Unlock()

	m.logger.Info("service restart scheduled",
		logger.String("service_id", id),
		logger.Duration("delay", m.restartDelay))

	return svc, nil
}

// CancelRestart drops any pending re-evaluation for id. Called when the
// service is deleted so the delayed callback cannot resurrect it.
func (m *Monitor) CancelRestart(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.restarts[id]; ok {
		timer.Stop()
		delete(m.restarts, id)
	}
}

func (m *Monitor) completeRestart(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.restarts, id)
	m.mu.Unlock()

	svc, ok := m.store.Get(id)
	if !ok {
		// Deleted during the delay; nothing to do.
		return
	}

	status := m.probe(ctx, svc.Endpoint)
	updated, changed, err := m.store.CompleteRestart(id, status, time.Now())
	if err != nil {
		return
	}

	m.logger.Info("service restart completed",
		logger.String("service_id", id),
		logger.String("status", string(updated.Status)))

	m.bus.Publish(eventbus.TopicLifecycle, eventbus.Event{
		Type:    eventbus.EventServiceRestarted,
		Payload: updated,
		Time:    time.Now(),
	})
	if changed {
		m.publishStatus(updated)
	}
}

func (m *Monitor) publishStatus(svc domain.Service) {
	now := time.Now()
	change := eventbus.StatusChange{
		ID:        svc.ID,
		Status:    string(svc.Status),
		Timestamp: now,
	}
	evt := eventbus.Event{Type: eventbus.EventServiceStatus, Payload: change, Time: now}
	m.bus.Publish(eventbus.TopicLifecycle, evt)
	m.bus.Publish(eventbus.ServiceTopic(svc.ID), evt)
}
