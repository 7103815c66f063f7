// Package metrics computes periodic store-wide snapshots and publishes them
// on the event bus and as Prometheus gauges.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/registry"
)

// Snapshot is the point-in-time aggregate broadcast on the metrics topic.
type Snapshot struct {
	TotalServices  int       `json:"totalServices"`
	ActiveServices int       `json:"activeServices"`
	Timestamp      time.Time `json:"timestamp"`
}

// Aggregator periodically snapshots the store and publishes the result.
// It is a read-only consumer of the store and runs on its own schedule,
// deliberately decoupled from the health monitor's.
type Aggregator struct {
	store    *registry.Store
	bus      *eventbus.Bus
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}

	servicesTotal  prometheus.Gauge
	servicesActive prometheus.Gauge
}

// NewAggregator creates an aggregator. reg may be nil in tests.
func NewAggregator(
	store *registry.Store,
	bus *eventbus.Bus,
	log logger.Logger,
	interval time.Duration,
	reg prometheus.Registerer,
) *Aggregator {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	a := &Aggregator{
		store:    store,
		bus:      bus,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
		servicesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpmon_services_total",
			Help: "Number of registered services.",
		}),
		servicesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpmon_services_active",
			Help: "Number of services currently active.",
		}),
	}
	if reg != nil {
		reg.MustRegister(a.servicesTotal, a.servicesActive)
	}
	return a
}

// Start begins the periodic snapshot loop. A snapshot is published
// immediately so observers never wait a full interval for the first one.
func (a *Aggregator) Start(ctx context.Context) error {
	a.Publish()

	ticker := time.NewTicker(a.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Publish()
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the snapshot loop.
func (a *Aggregator) Stop() {
	close(a.stopCh)
}

// Snapshot computes the current aggregate without publishing it.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		TotalServices:  a.store.Count(),
		ActiveServices: a.store.CountActive(),
		Timestamp:      time.Now(),
	}
}

// Publish computes a snapshot, updates the gauges and broadcasts it on the
// global metrics topic. The broadcast is unconditional: it happens whether
// or not anyone is subscribed.
func (a *Aggregator) Publish() {
	snap := a.Snapshot()

	a.servicesTotal.Set(float64(snap.TotalServices))
	a.servicesActive.Set(float64(snap.ActiveServices))

	a.bus.Publish(eventbus.TopicMetrics, eventbus.Event{
		Type:    eventbus.EventMetricsUpdate,
		Payload: snap,
		Time:    snap.Timestamp,
	})
}
