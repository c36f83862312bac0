package app

import (
	"context"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// JobSequencer navigates the total order of jobs inside a scope.
type JobSequencer struct {
	jobs ports.JobRepository
}

func NewJobSequencer(jobs ports.JobRepository) *JobSequencer {
	return &JobSequencer{jobs: jobs}
}

// SuccessorOf returns the job right after job in its scope, or nil when job
// is currently the last one.
func (s *JobSequencer) SuccessorOf(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	return s.jobs.NextInScope(ctx, job.Scope(), job.Key())
}
