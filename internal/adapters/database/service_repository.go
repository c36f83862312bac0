package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"foreman/internal/domain"
)

const serviceColumns = `service_id, name, description, job_registration_schema, job_result_schema,
	registered_at, last_checked_in, heartbeat_timeout_seconds`

func (s *PostgresStore) CreateService(ctx context.Context, service *domain.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		service.ID, service.Name, service.Description,
		[]byte(service.RegistrationSchema), []byte(service.ResultSchema),
		service.RegisteredAt, service.LastHeartbeat,
		int64(service.HeartbeatTimeout/time.Second),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return &domain.DuplicateIdentifierError{Resource: domain.ResourceService, ID: service.ID}
		}
		return fmt.Errorf("database: create service: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (*domain.Service, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE service_id = $1`, id)

	service, err := scanService(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound(domain.ResourceService, id)
		}
		return nil, fmt.Errorf("database: get service: %w", err)
	}
	return service, nil
}

func (s *PostgresStore) ListServices(ctx context.Context) ([]*domain.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY registered_at, service_id`)
	if err != nil {
		return nil, fmt.Errorf("database: list services: %w", err)
	}
	defer rows.Close()

	var services []*domain.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("database: scan service: %w", err)
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: list services: %w", err)
	}
	return services, nil
}

func (s *PostgresStore) TouchHeartbeat(ctx context.Context, id string, at time.Time) (*domain.Service, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE services
		SET last_checked_in = GREATEST(last_checked_in, $2)
		WHERE service_id = $1
		RETURNING `+serviceColumns,
		id, at,
	)

	service, err := scanService(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound(domain.ResourceService, id)
		}
		return nil, fmt.Errorf("database: touch heartbeat: %w", err)
	}
	return service, nil
}

func (s *PostgresStore) DeleteService(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE service_id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound(domain.ResourceService, id)
	}
	return nil
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var (
		service        domain.Service
		registration   []byte
		result         []byte
		timeoutSeconds int64
	)
	err := row.Scan(
		&service.ID, &service.Name, &service.Description,
		&registration, &result,
		&service.RegisteredAt, &service.LastHeartbeat, &timeoutSeconds,
	)
	if err != nil {
		return nil, err
	}

	service.RegistrationSchema = registration
	service.ResultSchema = result
	service.HeartbeatTimeout = time.Duration(timeoutSeconds) * time.Second
	service.RegisteredAt = service.RegisteredAt.UTC()
	service.LastHeartbeat = service.LastHeartbeat.UTC()
	return &service, nil
}
