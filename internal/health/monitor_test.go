package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmon/mcpmon/internal/domain"
	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/registry"
)

// fakeProber returns a scripted result per endpoint.
type fakeProber struct {
	mu   sync.Mutex
	fail map[string]bool // endpoint -> should fail
}

func newFakeProber() *fakeProber {
	return &fakeProber{fail: make(map[string]bool)}
}

func (p *fakeProber) setFailing(endpoint string, failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[endpoint] = failing
}

func (p *fakeProber) Probe(_ context.Context, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[endpoint] {
		return errors.New("unreachable")
	}
	return nil
}

func newTestMonitor(t *testing.T, prober Prober) (*Monitor, *registry.Store, *eventbus.Bus) {
	t.Helper()
	store := registry.NewStore()
	bus := eventbus.New(nil, nil)
	log := logger.New("error", false)
	m := NewMonitor(store, bus, prober, log, 50*time.Millisecond, 30*time.Millisecond)
	return m, store, bus
}

func waitForStatus(t *testing.T, store *registry.Store, id string, want domain.Status) domain.Service {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc, ok := store.Get(id); ok && svc.Status == want {
			return svc
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc, _ := store.Get(id)
	t.Fatalf("service %s never reached %s (last: %s)", id, want, svc.Status)
	return domain.Service{}
}

func TestFirstEvaluationTransitionsFromPending(t *testing.T) {
	prober := newFakeProber()
	m, store, _ := newTestMonitor(t, prober)

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, svc.Status)

	m.CheckNow(context.Background(), svc.ID)
	got := waitForStatus(t, store, svc.ID, domain.StatusActive)
	assert.False(t, got.LastCheck.IsZero())
}

func TestUnreachableEndpointGoesOffline(t *testing.T) {
	prober := newFakeProber()
	prober.setFailing("http://x", true)
	m, store, _ := newTestMonitor(t, prober)

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	m.CheckNow(context.Background(), svc.ID)
	waitForStatus(t, store, svc.ID, domain.StatusOffline)
}

func TestSweepFlipsStatusBothWays(t *testing.T) {
	prober := newFakeProber()
	m, store, _ := newTestMonitor(t, prober)

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitForStatus(t, store, svc.ID, domain.StatusActive)

	prober.setFailing("http://x", true)
	waitForStatus(t, store, svc.ID, domain.StatusOffline)

	prober.setFailing("http://x", false)
	waitForStatus(t, store, svc.ID, domain.StatusActive)
}

func TestRestartLifecycle(t *testing.T) {
	prober := newFakeProber()
	m, store, _ := newTestMonitor(t, prober)

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	got, err := m.Restart(context.Background(), svc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRestarting, got.Status)

	done := waitForStatus(t, store, svc.ID, domain.StatusActive)
	assert.False(t, done.RestartedAt.IsZero(), "RestartedAt stamped at completion")
}

func TestRestartUnknownID(t *testing.T) {
	m, _, _ := newTestMonitor(t, newFakeProber())

	_, err := m.Restart(context.Background(), "service_0_nope")
	assert.True(t, domain.IsNotFound(err))
}

func TestDeleteMidRestartIsNoOp(t *testing.T) {
	prober := newFakeProber()
	m, store, _ := newTestMonitor(t, prober)

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	_, err = m.Restart(context.Background(), svc.ID)
	require.NoError(t, err)

	require.True(t, store.Delete(svc.ID))
	m.CancelRestart(svc.ID)

	// Wait past the restart delay; the service must not reappear.
	time.Sleep(100 * time.Millisecond)
	_, ok := store.Get(svc.ID)
	assert.False(t, ok, "delete mid-restart must not resurrect the service")
}

func TestStatusEventsHaveNoConsecutiveDuplicates(t *testing.T) {
	prober := newFakeProber()
	m, store, bus := newTestMonitor(t, prober)

	sub := bus.SubscribeBuffered(eventbus.TopicLifecycle, 256)
	defer sub.Close()

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	waitForStatus(t, store, svc.ID, domain.StatusActive)

	prober.setFailing("http://x", true)
	waitForStatus(t, store, svc.ID, domain.StatusOffline)

	// Let several sweeps run with an unchanged probe result.
	time.Sleep(200 * time.Millisecond)
	m.Stop()

	var statuses []string
	for {
		select {
		case evt := <-sub.C():
			if evt.Type != eventbus.EventServiceStatus {
				continue
			}
			change := evt.Payload.(eventbus.StatusChange)
			statuses = append(statuses, change.Status)
		default:
			goto collected
		}
	}
collected:
	require.NotEmpty(t, statuses)
	for i := 1; i < len(statuses); i++ {
		assert.NotEqual(t, statuses[i-1], statuses[i],
			"no-op transitions must not emit events: %v", statuses)
	}
}

func TestRearmedRestartEmitsSingleRestartingEvent(t *testing.T) {
	prober := newFakeProber()
	m, store, bus := newTestMonitor(t, prober)

	sub := bus.SubscribeBuffered(eventbus.TopicLifecycle, 64)
	defer sub.Close()

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	_, err = m.Restart(context.Background(), svc.ID)
	require.NoError(t, err)
	_, err = m.Restart(context.Background(), svc.ID)
	require.NoError(t, err, "double restart is tolerated by re-arming the delay")

	waitForStatus(t, store, svc.ID, domain.StatusActive)

	restarting := 0
	deadline := time.After(time.Second)
	for restarting == 0 {
		select {
		case evt := <-sub.C():
			if evt.Type == eventbus.EventServiceStatus {
				if evt.Payload.(eventbus.StatusChange).Status == string(domain.StatusRestarting) {
					restarting++
				}
			}
		case <-deadline:
			t.Fatal("no restarting event observed")
		}
	}

	// Drain whatever is left; there must be no second restarting event.
	for {
		select {
		case evt := <-sub.C():
			if evt.Type == eventbus.EventServiceStatus &&
				evt.Payload.(eventbus.StatusChange).Status == string(domain.StatusRestarting) {
				t.Fatal("re-armed restart emitted a duplicate restarting event")
			}
		default:
			return
		}
	}
}

// gatedProber blocks each probe until released, so a test can hold a probe
// in flight while other operations run. started reports each probe entering.
type gatedProber struct {
	started chan struct{}
	gate    chan struct{}
}

func newGatedProber() *gatedProber {
	return &gatedProber{
		started: make(chan struct{}, 4),
		gate:    make(chan struct{}, 4),
	}
}

func (p *gatedProber) Probe(ctx context.Context, _ string) error {
	p.started <- struct{}{}
	select {
	case <-p.gate:
		return errors.New("unreachable")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestInFlightProbeDoesNotOverrideRestarting(t *testing.T) {
	prober := newGatedProber()
	m, store, bus := newTestMonitor(t, prober)

	sub := bus.SubscribeBuffered(eventbus.TopicLifecycle, 64)
	defer sub.Close()

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	// Hold a probe in flight, then request the restart while it is stuck.
	m.CheckNow(context.Background(), svc.ID)
	<-prober.started
	_, err = m.Restart(context.Background(), svc.ID)
	require.NoError(t, err)

	// Release the stale probe; its result must not take effect.
	prober.gate <- struct{}{}
	time.Sleep(20 * time.Millisecond)
	got, ok := store.Get(svc.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusRestarting, got.Status,
		"a probe started before the restart must not end the restarting state")

	// Let the delayed re-evaluation finish normally.
	prober.gate <- struct{}{}
	done := waitForStatus(t, store, svc.ID, domain.StatusOffline)
	assert.False(t, done.RestartedAt.IsZero())

	m.Stop()

	var statuses []string
	for {
		select {
		case evt := <-sub.C():
			if evt.Type == eventbus.EventServiceStatus {
				statuses = append(statuses, evt.Payload.(eventbus.StatusChange).Status)
			}
		default:
			assert.Equal(t, []string{
				string(domain.StatusRestarting),
				string(domain.StatusOffline),
			}, statuses)
			return
		}
	}
}

func TestRestartedEventCarriesSnapshot(t *testing.T) {
	prober := newFakeProber()
	m, store, bus := newTestMonitor(t, prober)

	sub := bus.SubscribeBuffered(eventbus.TopicLifecycle, 64)
	defer sub.Close()

	svc, err := store.Register(domain.RegisterConfig{Name: "svc1", Endpoint: "http://x"})
	require.NoError(t, err)

	_, err = m.Restart(context.Background(), svc.ID)
	require.NoError(t, err)
	waitForStatus(t, store, svc.ID, domain.StatusActive)

	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-sub.C():
			if evt.Type != eventbus.EventServiceRestarted {
				continue
			}
			got := evt.Payload.(domain.Service)
			assert.Equal(t, svc.ID, got.ID)
			assert.Equal(t, domain.StatusActive, got.Status)
			assert.False(t, got.RestartedAt.IsZero())
			return
		case <-deadline:
			t.Fatal("no service:restarted event observed")
		}
	}
}
