package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// DispatchService is the single entry point for the HTTP layer.
type DispatchService interface {
	RegisterService(ctx context.Context, spec domain.ServiceSpec) (*domain.Service, error)
	ListServices(ctx context.Context) ([]*domain.Service, error)
	GetService(ctx context.Context, serviceID string) (*domain.Service, error)
	Heartbeat(ctx context.Context, serviceID string) (*domain.Availability, error)
	DeleteService(ctx context.Context, serviceID string) error

	SubmitJob(ctx context.Context, serviceID string, parameters json.RawMessage, jobSetID *string) (*domain.Job, error)
	ListJobs(ctx context.Context, serviceID string, limit int) ([]*domain.Job, error)
	QueueHead(ctx context.Context, serviceID string) (*domain.Job, error)
	ClaimNext(ctx context.Context, serviceID string) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, jobID, status string, payload json.RawMessage) (*domain.Job, error)
	NextInSequence(ctx context.Context, jobID string) (*domain.Job, error)

	CreateJobSet(ctx context.Context, description string) (*domain.JobSet, error)
	GetJobSet(ctx context.Context, jobSetID string) (*domain.JobSet, error)
}

type dispatchService struct {
	store     ports.Store
	registry  *ServiceRegistry
	queue     *JobQueue
	machine   *JobStateMachine
	sequencer *JobSequencer
	publisher ports.EventPublisher
	logger    *slog.Logger
	now       Clock
}

func NewDispatchService(store ports.Store, validator ports.SchemaValidator, opts ...Option) DispatchService {
	o := buildOptions(opts)
	return &dispatchService{
		store:     store,
		registry:  NewServiceRegistry(store, validator, opts...),
		queue:     NewJobQueue(store, validator, opts...),
		machine:   NewJobStateMachine(store, store, validator, opts...),
		sequencer: NewJobSequencer(store),
		publisher: o.publisher,
		logger:    o.logger,
		now:       o.clock,
	}
}

func (s *dispatchService) RegisterService(ctx context.Context, spec domain.ServiceSpec) (*domain.Service, error) {
	return s.registry.Register(ctx, spec)
}

func (s *dispatchService) ListServices(ctx context.Context) ([]*domain.Service, error) {
	return s.registry.List(ctx)
}

func (s *dispatchService) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	return s.registry.Get(ctx, serviceID)
}

func (s *dispatchService) Heartbeat(ctx context.Context, serviceID string) (*domain.Availability, error) {
	return s.registry.Heartbeat(ctx, serviceID)
}

func (s *dispatchService) DeleteService(ctx context.Context, serviceID string) error {
	return s.registry.Delete(ctx, serviceID)
}

func (s *dispatchService) SubmitJob(ctx context.Context, serviceID string, parameters json.RawMessage, jobSetID *string) (*domain.Job, error) {
	service, err := s.registry.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if jobSetID != nil {
		set, err := s.GetJobSet(ctx, *jobSetID)
		if err != nil {
			return nil, err
		}
		jobSetID = &set.ID
	}

	job, err := s.queue.Enqueue(ctx, service, parameters, jobSetID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("service_id", job.ServiceID),
	)
	s.publish(ctx, domain.JobEventSubmitted, job)
	return job, nil
}

func (s *dispatchService) ListJobs(ctx context.Context, serviceID string, limit int) ([]*domain.Job, error) {
	switch {
	case limit < 0:
		return nil, domain.NewValidationError("limit", "must not be negative")
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	service, err := s.registry.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	jobs := make([]*domain.Job, 0)
	for job, err := range s.queue.History(ctx, service) {
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		if len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func (s *dispatchService) QueueHead(ctx context.Context, serviceID string) (*domain.Job, error) {
	service, err := s.registry.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return s.queue.PeekNext(ctx, service)
}

func (s *dispatchService) ClaimNext(ctx context.Context, serviceID string) (*domain.Job, error) {
	service, err := s.registry.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	job, err := s.queue.ClaimNext(ctx, service)
	if err != nil || job == nil {
		return nil, err
	}
	s.logger.Info("job claimed",
		slog.String("job_id", job.ID),
		slog.String("service_id", job.ServiceID),
	)
	s.publish(ctx, domain.JobEventClaimed, job)
	return job, nil
}

func (s *dispatchService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	id, err := normalizeID(domain.ResourceJob, jobID)
	if err != nil {
		return nil, err
	}
	return s.store.GetJob(ctx, id)
}

func (s *dispatchService) UpdateJob(ctx context.Context, jobID, status string, payload json.RawMessage) (*domain.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	to, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, domain.NewValidationError("status", err.Error())
	}

	updated, err := s.machine.Transition(ctx, job, to, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job updated",
		slog.String("job_id", updated.ID),
		slog.String("from", string(job.Status)),
		slog.String("to", string(updated.Status)),
	)
	s.publish(ctx, domain.EventTypeFor(updated.Status), updated)
	return updated, nil
}

func (s *dispatchService) NextInSequence(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.sequencer.SuccessorOf(ctx, job)
}

func (s *dispatchService) CreateJobSet(ctx context.Context, description string) (*domain.JobSet, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > domain.MaxJobSetDescription {
		return nil, domain.NewValidationError("description", "must be at most 140 characters")
	}
	set := domain.NewJobSet(description, s.now())
	if err := s.store.CreateJobSet(ctx, set); err != nil {
		return nil, err
	}
	s.logger.Info("job set created", slog.String("job_set_id", set.ID))
	return set, nil
}

func (s *dispatchService) GetJobSet(ctx context.Context, jobSetID string) (*domain.JobSet, error) {
	id, err := normalizeID(domain.ResourceJobSet, jobSetID)
	if err != nil {
		return nil, err
	}
	return s.store.GetJobSet(ctx, id)
}

func (s *dispatchService) publish(ctx context.Context, eventType domain.JobEventType, job *domain.Job) {
	if s.publisher == nil {
		return
	}
	event := domain.NewJobEvent(eventType, job, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish job event",
			slog.String("event_type", string(event.Type)),
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
