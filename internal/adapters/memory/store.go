// Package memory provides an in-process store. Safe for concurrent access;
// intended for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	services map[string]*domain.Service
	jobs     map[string]*domain.Job
	jobSets  map[string]*domain.JobSet
}

func NewStore() *Store {
	return &Store{
		services: make(map[string]*domain.Service),
		jobs:     make(map[string]*domain.Job),
		jobSets:  make(map[string]*domain.JobSet),
	}
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Services

func (s *Store) CreateService(_ context.Context, service *domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[service.ID]; exists {
		return &domain.DuplicateIdentifierError{Resource: domain.ResourceService, ID: service.ID}
	}
	s.services[service.ID] = service.Clone()
	return nil
}

func (s *Store) GetService(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service, ok := s.services[id]
	if !ok {
		return nil, domain.NewNotFound(domain.ResourceService, id)
	}
	return service.Clone(), nil
}

func (s *Store) ListServices(_ context.Context) ([]*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Service, 0, len(s.services))
	for _, service := range s.services {
		out = append(out, service.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) TouchHeartbeat(_ context.Context, id string, at time.Time) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	service, ok := s.services[id]
	if !ok {
		return nil, domain.NewNotFound(domain.ResourceService, id)
	}
	if at.After(service.LastHeartbeat) {
		service.LastHeartbeat = at
	}
	return service.Clone(), nil
}

func (s *Store) DeleteService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return domain.NewNotFound(domain.ResourceService, id)
	}
	delete(s.services, id)
	for jobID, job := range s.jobs {
		if job.ServiceID == id {
			delete(s.jobs, jobID)
		}
	}
	return nil
}

// Jobs

func (s *Store) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &domain.DuplicateIdentifierError{Resource: domain.ResourceJob, ID: job.ID}
	}
	if _, ok := s.services[job.ServiceID]; !ok {
		return domain.NewNotFound(domain.ResourceService, job.ServiceID)
	}
	if job.JobSetID != nil {
		if _, ok := s.jobSets[*job.JobSetID]; !ok {
			return domain.NewNotFound(domain.ResourceJobSet, *job.JobSetID)
		}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewNotFound(domain.ResourceJob, id)
	}
	return job.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.sorted(func(j *domain.Job) bool {
		if j.ServiceID != filter.ServiceID {
			return false
		}
		return filter.After == nil || filter.After.Less(j.Key())
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	out := make([]*domain.Job, len(matches))
	for i, job := range matches {
		out[i] = job.Clone()
	}
	return out, nil
}

func (s *Store) PeekNext(_ context.Context, serviceID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job := s.oldestPending(serviceID)
	if job == nil {
		return nil, nil
	}
	return job.Clone(), nil
}

func (s *Store) ClaimNext(_ context.Context, serviceID string, at time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.oldestPending(serviceID)
	if job == nil {
		return nil, nil
	}
	job.Status = domain.JobStatusWorking
	job.UpdatedAt = at
	return job.Clone(), nil
}

func (s *Store) TransitionJob(_ context.Context, id string, from, to domain.JobStatus, results json.RawMessage, at time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewNotFound(domain.ResourceJob, id)
	}
	if job.Status != from {
		return nil, &domain.InvalidTransitionError{JobID: id, From: job.Status, To: to}
	}
	job.Status = to
	if to.IsTerminal() {
		job.Results = append(json.RawMessage(nil), results...)
	}
	job.UpdatedAt = at
	return job.Clone(), nil
}

func (s *Store) NextInScope(_ context.Context, scope domain.Scope, after domain.JobKey) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Job
	for _, job := range s.jobs {
		if !job.InScope(scope) || !after.Less(job.Key()) {
			continue
		}
		if next == nil || job.Key().Less(next.Key()) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}
	return next.Clone(), nil
}

// Job sets

func (s *Store) CreateJobSet(_ context.Context, set *domain.JobSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobSets[set.ID]; exists {
		return &domain.DuplicateIdentifierError{Resource: domain.ResourceJobSet, ID: set.ID}
	}
	cp := *set
	s.jobSets[set.ID] = &cp
	return nil
}

func (s *Store) GetJobSet(_ context.Context, id string) (*domain.JobSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.jobSets[id]
	if !ok {
		return nil, domain.NewNotFound(domain.ResourceJobSet, id)
	}
	cp := *set
	return &cp, nil
}

// oldestPending must be called with mu held.
func (s *Store) oldestPending(serviceID string) *domain.Job {
	var oldest *domain.Job
	for _, job := range s.jobs {
		if job.ServiceID != serviceID || job.Status != domain.JobStatusRegistered {
			continue
		}
		if oldest == nil || job.Key().Less(oldest.Key()) {
			oldest = job
		}
	}
	return oldest
}

// sorted must be called with mu held.
func (s *Store) sorted(keep func(*domain.Job) bool) []*domain.Job {
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if keep(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}
