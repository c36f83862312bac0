package app

import (
	"context"
	"encoding/json"
	"iter"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

const historyPageSize = 100

// JobQueue is the per-service ordered job collection.
type JobQueue struct {
	jobs      ports.JobRepository
	validator ports.SchemaValidator
	now       Clock
}

func NewJobQueue(jobs ports.JobRepository, validator ports.SchemaValidator, opts ...Option) *JobQueue {
	o := buildOptions(opts)
	return &JobQueue{
		jobs:      jobs,
		validator: validator,
		now:       o.clock,
	}
}

// Enqueue validates parameters against the service's registration schema
// and appends a REGISTERED job. Nothing is stored when validation fails.
func (q *JobQueue) Enqueue(ctx context.Context, service *domain.Service, parameters json.RawMessage, jobSetID *string) (*domain.Job, error) {
	if domain.IsAbsent(parameters) {
		return nil, domain.NewValidationError("parameters", "is required")
	}
	violations, err := q.validator.Validate(parameters, service.RegistrationSchema)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	job := domain.NewJob(service.ID, parameters, q.now())
	job.JobSetID = jobSetID
	if err := q.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// PeekNext returns the job ClaimNext would hand out, without claiming it.
// A nil job means the queue is empty.
func (q *JobQueue) PeekNext(ctx context.Context, service *domain.Service) (*domain.Job, error) {
	return q.jobs.PeekNext(ctx, service.ID)
}

// ClaimNext hands the oldest pending job to exactly one caller.
func (q *JobQueue) ClaimNext(ctx context.Context, service *domain.Service) (*domain.Job, error) {
	return q.jobs.ClaimNext(ctx, service.ID, q.now())
}

// History yields every job of the service in submission order. Pages are
// fetched lazily; ranging over the sequence again starts from the beginning.
func (q *JobQueue) History(ctx context.Context, service *domain.Service) iter.Seq2[*domain.Job, error] {
	return func(yield func(*domain.Job, error) bool) {
		var after *domain.JobKey
		for {
			page, err := q.jobs.ListJobs(ctx, domain.JobFilter{
				ServiceID: service.ID,
				After:     after,
				Limit:     historyPageSize,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, job := range page {
				if !yield(job, nil) {
					return
				}
			}
			if len(page) < historyPageSize {
				return
			}
			last := page[len(page)-1].Key()
			after = &last
		}
	}
}
