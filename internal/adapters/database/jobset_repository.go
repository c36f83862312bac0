package database

import (
	"context"
	"fmt"

	"foreman/internal/domain"
)

func (s *PostgresStore) CreateJobSet(ctx context.Context, set *domain.JobSet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_sets (job_set_id, description, created_at)
		VALUES ($1, $2, $3)`,
		set.ID, set.Description, set.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return &domain.DuplicateIdentifierError{Resource: domain.ResourceJobSet, ID: set.ID}
		}
		return fmt.Errorf("database: create job set: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJobSet(ctx context.Context, id string) (*domain.JobSet, error) {
	var set domain.JobSet
	err := s.pool.QueryRow(ctx, `
		SELECT job_set_id, description, created_at FROM job_sets WHERE job_set_id = $1`, id,
	).Scan(&set.ID, &set.Description, &set.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound(domain.ResourceJobSet, id)
		}
		return nil, fmt.Errorf("database: get job set: %w", err)
	}
	set.CreatedAt = set.CreatedAt.UTC()
	return &set, nil
}
