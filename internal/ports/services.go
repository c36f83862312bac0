package ports

import (
	"context"
	"encoding/json"

	"foreman/internal/domain"
)

type SchemaValidator interface {
	// CheckSchema returns the structural problems of a JSON Schema document,
	// or nil when it is a valid schema.
	CheckSchema(schema json.RawMessage) ([]domain.Violation, error)
	// Validate returns every constraint of schema that document violates.
	Validate(document, schema json.RawMessage) ([]domain.Violation, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.JobEvent) error
	Close() error
}

// DispatchClient is the slice of the dispatch API a worker needs.
type DispatchClient interface {
	Heartbeat(ctx context.Context, serviceID string) (*domain.Availability, error)
	ClaimNext(ctx context.Context, serviceID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, jobID string, status domain.JobStatus, results json.RawMessage) (*domain.Job, error)
}
