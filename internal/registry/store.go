package registry

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mcpmon/mcpmon/internal/domain"
)

// Store is the authoritative in-memory collection of registered services.
// All other components read and mutate services only through this type.
//
// Every Service handed out is a deep copy: a reader can never observe a
// half-merged update, and holding a returned value never races with the
// store's own mutation.
type Store struct {
	mu       sync.RWMutex
	services map[string]*domain.Service // id -> service
	order    []string                   // ids in insertion order
	seq      atomic.Uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		services: make(map[string]*domain.Service),
	}
}

// newID produces a collision-free service identifier: a monotonically
// increasing counter plus a random suffix, so two registrations within the
// same millisecond still get distinct ids.
func (s *Store) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("service_%d_%s", s.seq.Add(1), suffix)
}

// Register validates cfg, assigns a fresh id and inserts the service with
// status pending. The first health evaluation is scheduled by the caller.
func (s *Store) Register(cfg domain.RegisterConfig) (domain.Service, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Service{}, err
	}

	// Copy the caller's slices so later mutation of the input cannot reach
	// store state.
	caps := make([]string, len(cfg.Capabilities))
	copy(caps, cfg.Capabilities)
	md := make(map[string]any, len(cfg.Metadata))
	for k, v := range cfg.Metadata {
		md[k] = v
	}

	now := time.Now()
	svc := &domain.Service{
		ID:           s.newID(),
		Name:         cfg.Name,
		Type:         cfg.Type,
		Endpoint:     cfg.Endpoint,
		Status:       domain.StatusPending,
		Capabilities: caps,
		Metadata:     md,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.services[svc.ID] = svc
	s.order = append(s.order, svc.ID)
	s.mu.Unlock()

	return svc.Clone(), nil
}

// Get retrieves a service by id.
func (s *Store) Get(id string) (domain.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return domain.Service{}, false
	}
	return svc.Clone(), true
}

// All returns every service in insertion order.
func (s *Store) All() []domain.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Service, 0, len(s.order))
	for _, id := range s.order {
		if svc, ok := s.services[id]; ok {
			out = append(out, svc.Clone())
		}
	}
	return out
}

// Count returns the number of registered services.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.services)
}

// CountActive returns the number of services currently in status active.
func (s *Store) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, svc := range s.services {
		if svc.Status == domain.StatusActive {
			n++
		}
	}
	return n
}

// Update merges the allow-listed fields of cfg into the service and stamps
// UpdatedAt. Identity and lifecycle fields can never be changed this way.
func (s *Store) Update(id string, cfg domain.UpdateConfig) (domain.Service, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Service{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return domain.Service{}, domain.NewNotFoundError(id)
	}

	cfg.Apply(svc)
	svc.UpdatedAt = time.Now()
	return svc.Clone(), nil
}

// Delete removes the service. The second delete of the same id returns
// false, not an error.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return false
	}
	delete(s.services, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// SetStatus records a probe outcome: LastCheck is always stamped, the status
// only when it differs. The returned bool tells the caller whether a real
// transition happened (and therefore whether a lifecycle event is due).
//
// A service in restarting is left alone entirely: that state is exited only
// by CompleteRestart, so a probe that was already in flight when the restart
// was requested cannot clobber it.
func (s *Store) SetStatus(id string, status domain.Status, at time.Time) (domain.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return domain.Service{}, false, domain.NewNotFoundError(id)
	}
	if svc.Status == domain.StatusRestarting {
		return svc.Clone(), false, nil
	}

	changed := svc.Status != status
	svc.Status = status
	svc.LastCheck = at
	return svc.Clone(), changed, nil
}

// MarkRestarting flips the service into the transient restarting state.
// The returned bool is false when the service was already restarting.
func (s *Store) MarkRestarting(id string) (domain.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return domain.Service{}, false, domain.NewNotFoundError(id)
	}

	changed := svc.Status != domain.StatusRestarting
	svc.Status = domain.StatusRestarting
	return svc.Clone(), changed, nil
}

// CompleteRestart lands the service in the post-restart probe result.
// RestartedAt marks when the restart finished, not when it was requested.
// The returned bool reports whether the status actually changed, so the
// caller emits a status event only on a real transition.
func (s *Store) CompleteRestart(id string, status domain.Status, at time.Time) (domain.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return domain.Service{}, false, domain.NewNotFoundError(id)
	}

	changed := svc.Status != status
	svc.Status = status
	svc.LastCheck = at
	svc.RestartedAt = at
	return svc.Clone(), changed, nil
}
