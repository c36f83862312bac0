package ports

import (
	"context"
	"encoding/json"
	"time"

	"foreman/internal/domain"
)

// ServiceRepository stores services. Lookups of unknown IDs return a
// *domain.NotFoundError.
type ServiceRepository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context) ([]*domain.Service, error)
	// TouchHeartbeat moves the last heartbeat forward to at, never backwards.
	TouchHeartbeat(ctx context.Context, id string, at time.Time) (*domain.Service, error)
	// DeleteService removes the service together with all of its jobs.
	DeleteService(ctx context.Context, id string) error
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	// ListJobs returns up to filter.Limit jobs of a service in key order,
	// starting strictly after filter.After when set.
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	// PeekNext returns the oldest REGISTERED job of a service, or nil.
	PeekNext(ctx context.Context, serviceID string) (*domain.Job, error)
	// ClaimNext moves the oldest REGISTERED job of a service to WORKING in a
	// single conditional update and returns it, or nil when none is pending.
	ClaimNext(ctx context.Context, serviceID string, at time.Time) (*domain.Job, error)
	// TransitionJob sets status to and results only if the job is still in
	// status from. Otherwise it returns a *domain.InvalidTransitionError
	// naming the status actually found.
	TransitionJob(ctx context.Context, id string, from, to domain.JobStatus, results json.RawMessage, at time.Time) (*domain.Job, error)
	// NextInScope returns the job with the smallest key greater than after
	// within scope, or nil.
	NextInScope(ctx context.Context, scope domain.Scope, after domain.JobKey) (*domain.Job, error)
}

type JobSetRepository interface {
	CreateJobSet(ctx context.Context, set *domain.JobSet) error
	GetJobSet(ctx context.Context, id string) (*domain.JobSet, error)
}

// Store bundles every repository one storage backend provides.
type Store interface {
	ServiceRepository
	JobRepository
	JobSetRepository
	Ping(ctx context.Context) error
	Close() error
}
