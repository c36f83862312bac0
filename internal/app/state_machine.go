package app

import (
	"context"
	"encoding/json"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// JobStateMachine is the only path through which a job's status or results
// change. Rejected transitions leave the job untouched.
type JobStateMachine struct {
	jobs      ports.JobRepository
	services  ports.ServiceRepository
	validator ports.SchemaValidator
	now       Clock
}

func NewJobStateMachine(jobs ports.JobRepository, services ports.ServiceRepository, validator ports.SchemaValidator, opts ...Option) *JobStateMachine {
	o := buildOptions(opts)
	return &JobStateMachine{
		jobs:      jobs,
		services:  services,
		validator: validator,
		now:       o.clock,
	}
}

// Transition moves job to status to. WORKING takes no payload; COMPLETED
// requires results valid against the service's result schema; ERROR
// requires an error description of any shape.
func (m *JobStateMachine) Transition(ctx context.Context, job *domain.Job, to domain.JobStatus, payload json.RawMessage) (*domain.Job, error) {
	if err := domain.CheckTransition(job.ID, job.Status, to); err != nil {
		return nil, err
	}

	var results json.RawMessage
	switch to {
	case domain.JobStatusCompleted:
		if domain.IsAbsent(payload) {
			return nil, domain.NewValidationError("results", "is required to complete a job")
		}
		service, err := m.services.GetService(ctx, job.ServiceID)
		if err != nil {
			return nil, err
		}
		violations, err := m.validator.Validate(payload, service.ResultSchema)
		if err != nil {
			return nil, err
		}
		if len(violations) > 0 {
			return nil, &domain.ValidationError{Violations: violations}
		}
		results = payload
	case domain.JobStatusError:
		if domain.IsAbsent(payload) {
			return nil, domain.NewValidationError("results", "an error description is required")
		}
		results = payload
	}

	return m.jobs.TransitionJob(ctx, job.ID, job.Status, to, results, m.now())
}
