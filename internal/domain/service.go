package domain

import "time"

// ServiceType distinguishes the two kinds of MCP participants the registry tracks.
type ServiceType string

const (
	TypeServer ServiceType = "server"
	TypeClient ServiceType = "client"
)

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	return t == TypeServer || t == TypeClient
}

// Status is the liveness state of a registered service.
//
// pending is assigned at registration and lasts until the first probe.
// active and offline reflect the most recent probe result. restarting is
// transient: it is entered only by an explicit restart request and left
// automatically once the delayed re-evaluation completes.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusOffline    Status = "offline"
	StatusRestarting Status = "restarting"
)

// Valid reports whether s is one of the four enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusOffline, StatusRestarting:
		return true
	}
	return false
}

// Service represents a registered MCP server or client tracked by the registry.
//
// The registry store is the only writer; everything handed out of the store
// is a copy, so holders never race with in-place mutation.
type Service struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the canonical unique identifier, assigned at registration.
	ID string `json:"id"`

	// ─────────────────────────────
	// Functional description
	// ─────────────────────────────

	// Name is the display name. Mutable.
	Name string `json:"name"`

	// Type is "server" or "client".
	Type ServiceType `json:"type"`

	// Endpoint is the URI probed for liveness and invoked by test calls.
	Endpoint string `json:"endpoint"`

	// Status is the current liveness state.
	Status Status `json:"status"`

	// Capabilities is a set of opaque capability tags.
	Capabilities []string `json:"capabilities"`

	// Metadata holds arbitrary caller-supplied key/value pairs.
	Metadata map[string]any `json:"metadata"`

	// ─────────────────────────────
	// Observation timestamps
	// ─────────────────────────────

	// CreatedAt is set once at registration.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is set on every successful mutation.
	UpdatedAt time.Time `json:"updatedAt"`

	// LastCheck is stamped by the health monitor on every probe,
	// whether or not the status changed.
	LastCheck time.Time `json:"lastCheck,omitzero"`

	// RestartedAt is stamped when a restart's delayed re-evaluation
	// completes, not when the restart was requested.
	RestartedAt time.Time `json:"restartedAt,omitzero"`
}

// Clone returns a deep copy of the service.
// Capabilities and Metadata are copied so the caller cannot alias store state.
func (s Service) Clone() Service {
	out := s
	if s.Capabilities != nil {
		out.Capabilities = make([]string, len(s.Capabilities))
		copy(out.Capabilities, s.Capabilities)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// RegisterConfig is the input for registering a new service.
type RegisterConfig struct {
	Name         string         `json:"name"`
	Type         ServiceType    `json:"type"`
	Endpoint     string         `json:"endpoint"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Validate checks the registration input against the registry's invariants.
// Endpoint reachability is deliberately not checked here; that is the
// health monitor's job.
func (c RegisterConfig) Validate() error {
	if c.Name == "" {
		return NewValidationError("name is required")
	}
	if c.Endpoint == "" {
		return NewValidationError("endpoint is required")
	}
	if c.Type != "" && !c.Type.Valid() {
		return NewValidationError("type must be \"server\" or \"client\"")
	}
	return nil
}

// UpdateConfig is the allow-list of mutable fields for a service update.
// Pointer fields distinguish "absent" from "set to zero value"; fields not
// listed here (id, status, createdAt, ...) can never be changed by callers.
type UpdateConfig struct {
	Name         *string         `json:"name,omitempty"`
	Type         *ServiceType    `json:"type,omitempty"`
	Endpoint     *string         `json:"endpoint,omitempty"`
	Capabilities *[]string       `json:"capabilities,omitempty"`
	Metadata     *map[string]any `json:"metadata,omitempty"`
}

// Validate rejects updates that would violate entity invariants.
func (c UpdateConfig) Validate() error {
	if c.Name != nil && *c.Name == "" {
		return NewValidationError("name cannot be empty")
	}
	if c.Endpoint != nil && *c.Endpoint == "" {
		return NewValidationError("endpoint cannot be empty")
	}
	if c.Type != nil && !c.Type.Valid() {
		return NewValidationError("type must be \"server\" or \"client\"")
	}
	return nil
}

// Apply merges the update into svc. Only allow-listed fields are touched.
func (c UpdateConfig) Apply(svc *Service) {
	if c.Name != nil {
		svc.Name = *c.Name
	}
	if c.Type != nil {
		svc.Type = *c.Type
	}
	if c.Endpoint != nil {
		svc.Endpoint = *c.Endpoint
	}
	if c.Capabilities != nil {
		caps := make([]string, len(*c.Capabilities))
		copy(caps, *c.Capabilities)
		svc.Capabilities = caps
	}
	if c.Metadata != nil {
		md := make(map[string]any, len(*c.Metadata))
		for k, v := range *c.Metadata {
			md[k] = v
		}
		svc.Metadata = md
	}
}
