package events

import (
	"context"
	"errors"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, domain.JobEvent) error { return nil }

func (Noop) Close() error { return nil }

// Multi fans an event out to every publisher. One failing publisher does
// not stop the others; their errors are joined.
type Multi []ports.EventPublisher

func (m Multi) Publish(ctx context.Context, event domain.JobEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
