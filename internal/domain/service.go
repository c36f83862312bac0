package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHeartbeatTimeout = 30 * time.Second
	MaxServiceName          = 30
)

// Service is a registered compute backend. Its schemas never change after
// registration, so every job stays bound to the schemas it was validated with.
type Service struct {
	ID                 string
	Name               string
	Description        string
	RegistrationSchema json.RawMessage
	ResultSchema       json.RawMessage
	RegisteredAt       time.Time
	LastHeartbeat      time.Time
	HeartbeatTimeout   time.Duration
}

// ServiceSpec carries what a caller supplies when registering a service.
type ServiceSpec struct {
	ID                 string
	Name               string
	Description        string
	RegistrationSchema json.RawMessage
	ResultSchema       json.RawMessage
	HeartbeatTimeout   time.Duration
}

func NewService(spec ServiceSpec, now time.Time) *Service {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := spec.HeartbeatTimeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &Service{
		ID:                 id,
		Name:               spec.Name,
		Description:        spec.Description,
		RegistrationSchema: spec.RegistrationSchema,
		ResultSchema:       spec.ResultSchema,
		RegisteredAt:       now,
		LastHeartbeat:      now,
		HeartbeatTimeout:   timeout,
	}
}

// IsAvailable reports whether the service heartbeated within its timeout.
// A service that has never heartbeated since registration is unavailable.
func (s *Service) IsAvailable(now time.Time) bool {
	if !s.LastHeartbeat.After(s.RegisteredAt) {
		return false
	}
	return now.Sub(s.LastHeartbeat) < s.HeartbeatTimeout
}

// Availability returns the service's availability as observed at now.
func (s *Service) Availability(now time.Time) Availability {
	return Availability{
		ServiceID:     s.ID,
		Available:     s.IsAvailable(now),
		LastHeartbeat: s.LastHeartbeat,
		ExpiresAt:     s.LastHeartbeat.Add(s.HeartbeatTimeout),
	}
}

// HeartbeatAt returns the timestamp a heartbeat received at now records.
// It always lies strictly after registration so the first heartbeat counts.
func (s *Service) HeartbeatAt(now time.Time) time.Time {
	if !now.After(s.RegisteredAt) {
		return s.RegisteredAt.Add(time.Microsecond)
	}
	return now
}

func (s *Service) Clone() *Service {
	cp := *s
	cp.RegistrationSchema = cloneRaw(s.RegistrationSchema)
	cp.ResultSchema = cloneRaw(s.ResultSchema)
	return &cp
}

type Availability struct {
	ServiceID     string
	Available     bool
	LastHeartbeat time.Time
	ExpiresAt     time.Time
}
