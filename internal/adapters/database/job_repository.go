package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"foreman/internal/domain"
)

const jobColumns = `job_id, service_id, status, parameters, results, date_submitted, updated_at, job_set_id`

func (s *PostgresStore) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.ServiceID, string(job.Status),
		[]byte(job.Parameters), nullableJSON(job.Results),
		job.SubmittedAt, job.UpdatedAt, job.JobSetID,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return &domain.DuplicateIdentifierError{Resource: domain.ResourceJob, ID: job.ID}
		}
		if constraint, ok := isForeignKeyViolation(err); ok {
			if constraint == "jobs_job_set_id_fkey" && job.JobSetID != nil {
				return domain.NewNotFound(domain.ResourceJobSet, *job.JobSetID)
			}
			return domain.NewNotFound(domain.ResourceService, job.ServiceID)
		}
		return fmt.Errorf("database: create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound(domain.ResourceJob, id)
		}
		return nil, fmt.Errorf("database: get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE service_id = $1`
	args := []any{filter.ServiceID}

	if filter.After != nil {
		query += ` AND (date_submitted, job_id) > ($2::timestamptz, $3::uuid)`
		args = append(args, filter.After.SubmittedAt, filter.After.ID)
	}
	query += ` ORDER BY date_submitted, job_id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) PeekNext(ctx context.Context, serviceID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE service_id = $1 AND status = 'REGISTERED'
		ORDER BY date_submitted, job_id
		LIMIT 1`,
		serviceID,
	)
	return optionalJob(scanJob(row))
}

// ClaimNext locks the oldest pending row, skipping rows other claimants
// hold, and flips it to WORKING in the same statement.
func (s *PostgresStore) ClaimNext(ctx context.Context, serviceID string, at time.Time) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'WORKING', updated_at = $2
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE service_id = $1 AND status = 'REGISTERED'
			ORDER BY date_submitted, job_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'REGISTERED'
		RETURNING `+jobColumns,
		serviceID, at,
	)

	job, err := optionalJob(scanJob(row))
	if err != nil {
		return nil, fmt.Errorf("database: claim next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) TransitionJob(ctx context.Context, id string, from, to domain.JobStatus, results json.RawMessage, at time.Time) (*domain.Job, error) {
	var stored any
	if to.IsTerminal() {
		stored = []byte(results)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = $3, results = $4, updated_at = $5
		WHERE job_id = $1 AND status = $2
		RETURNING `+jobColumns,
		id, string(from), string(to), stored, at,
	)

	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("database: transition job: %w", err)
	}

	// The conditional update matched nothing: either the job is gone or
	// its status moved on.
	current, getErr := s.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &domain.InvalidTransitionError{JobID: id, From: current.Status, To: to}
}

func (s *PostgresStore) NextInScope(ctx context.Context, scope domain.Scope, after domain.JobKey) (*domain.Job, error) {
	scopeClause := `service_id = $1 AND job_set_id IS NULL`
	if scope.Kind == domain.ScopeJobSet {
		scopeClause = `job_set_id = $1`
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE `+scopeClause+` AND (date_submitted, job_id) > ($2::timestamptz, $3::uuid)
		ORDER BY date_submitted, job_id
		LIMIT 1`,
		scope.ID, after.SubmittedAt, after.ID,
	)

	job, err := optionalJob(scanJob(row))
	if err != nil {
		return nil, fmt.Errorf("database: next job in %s: %w", scope, err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		status     string
		parameters []byte
		results    []byte
	)
	err := row.Scan(
		&job.ID, &job.ServiceID, &status,
		&parameters, &results,
		&job.SubmittedAt, &job.UpdatedAt, &job.JobSetID,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Parameters = parameters
	if results != nil {
		job.Results = results
	}
	job.SubmittedAt = job.SubmittedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("database: scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: iterate jobs: %w", err)
	}
	return jobs, nil
}

// optionalJob turns "no rows" into an empty result.
func optionalJob(job *domain.Job, err error) (*domain.Job, error) {
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func nullableJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return []byte(raw)
}
